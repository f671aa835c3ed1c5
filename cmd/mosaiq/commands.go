package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hejijunhao/mosaiq/internal/output"
	"github.com/hejijunhao/mosaiq/internal/output/stdout"
	"github.com/hejijunhao/mosaiq/pkg/mosaiq"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func classifyCommand(c *cli.Context) error {
	text := c.String("text")
	if text == "" {
		text = strings.Join(c.Args().Slice(), " ")
	}

	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	cs, err := svc.ClassifyContent(c.Context, mosaiq.ClassifyContentRequest{
		Title: c.String("title"),
		Text:  text,
	})
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, cs)
}

func addCommand(c *cli.Context) error {
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	item := mosaiq.Content{
		ID:    c.String("id"),
		Title: c.String("title"),
		Text:  c.String("text"),
		URL:   c.String("url"),
	}
	if err := svc.AddContent(c.Context, item); err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "added %s\n", item.ID)

	if !c.Bool("classify") {
		return nil
	}
	st, err := svc.ClassifyContentItem(c.Context, mosaiq.ClassifyItemRequest{ID: item.ID, Force: true})
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, st)
}

func classifyItemCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("content id is required")
	}

	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	st, err := svc.ClassifyContentItem(c.Context, mosaiq.ClassifyItemRequest{ID: id, Force: c.Bool("force")})
	if err != nil && !errors.Is(err, mosaiq.ErrJobFailed) {
		return err
	}
	if perr := printJSON(c.App.Writer, st); perr != nil {
		return perr
	}
	return err
}

// batchCommand runs a batch until it finishes or the process is
// interrupted, printing one line per settled item.
func batchCommand(c *cli.Context) error {
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := svc.BatchReclassify(ctx, mosaiq.BatchRequest{
		IDs:   c.Args().Slice(),
		All:   c.Bool("all"),
		Force: c.Bool("force"),
	})
	if err != nil {
		return err
	}

	printer := stdout.NewText(c.App.ErrWriter, output.Standard)
	var summary mosaiq.BatchSummary
	g := new(errgroup.Group)
	g.Go(func() error {
		for ev := range b.Events() {
			if err := printer.Write(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		summary = b.Wait()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "batch %s: %d completed, %d failed, %d cancelled of %d\n",
		summary.BatchID, summary.Completed, summary.Failed, summary.Cancelled, summary.Total)
	if summary.Failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

type engineStatus struct {
	Available  bool   `json:"available"`
	ModelError string `json:"model_error,omitempty"`
	Concepts   int    `json:"concepts"`
	Stored     int    `json:"stored_items"`
}

func statusCommand(c *cli.Context) error {
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	if id := c.Args().First(); id != "" {
		cs, err := svc.StoredClassifications(c.Context, id)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, cs)
	}

	st := engineStatus{
		Available: svc.ClassificationAvailable(),
		Concepts:  len(svc.TaxonomyConcepts()),
	}
	if err := svc.ModelError(); err != nil {
		st.ModelError = err.Error()
	}
	ids, err := svc.ContentIDs(c.Context)
	if err != nil && !errors.Is(err, mosaiq.ErrNoStore) {
		return err
	}
	st.Stored = len(ids)
	return printJSON(c.App.Writer, st)
}

func verifyCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: verify <id> <concept>")
	}
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	return svc.VerifyClassification(c.Context, c.Args().Get(0), c.Args().Get(1))
}

func removeCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("content id is required")
	}
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	return svc.RemoveContent(c.Context, id)
}

func taxonomyListCommand(c *cli.Context) error {
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	concepts := svc.TaxonomyConcepts()
	if c.Bool("roots") {
		concepts = svc.RootConcepts()
	}
	for _, concept := range concepts {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", concept.ID, concept.Label)
	}
	return nil
}

type conceptDetail struct {
	mosaiq.Concept
	Ancestors []string `json:"ancestors,omitempty"`
	Children  []string `json:"children,omitempty"`
}

func taxonomyGetCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("concept id is required")
	}
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	concept, err := svc.TaxonomyConcept(id)
	if err != nil {
		return err
	}
	concept.Embedding = nil
	d := conceptDetail{Concept: concept}
	for _, a := range svc.AncestorConcepts(id) {
		d.Ancestors = append(d.Ancestors, a.ID)
	}
	for _, ch := range svc.ChildConcepts(id) {
		d.Children = append(d.Children, ch.ID)
	}
	return printJSON(c.App.Writer, d)
}

func taxonomySearchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	for _, concept := range svc.SearchTaxonomyConcepts(c.Context, query) {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", concept.ID, concept.Label)
	}
	return nil
}

func taxonomyChildrenCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("concept id is required")
	}
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	for _, concept := range svc.ChildConcepts(id) {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", concept.ID, concept.Label)
	}
	return nil
}

func taxonomyContentCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("concept id is required")
	}
	svc, closeAll, err := openService(c)
	if err != nil {
		return err
	}
	defer closeAll()

	ids, err := svc.ContentForConcept(c.Context, id)
	if err != nil {
		return err
	}
	for _, contentID := range ids {
		fmt.Fprintln(c.App.Writer, contentID)
	}
	return nil
}
