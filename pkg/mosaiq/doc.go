// Package mosaiq classifies saved content against a concept taxonomy using a
// local sentence-embedding model.
//
// Quick start:
//
//	svc, err := mosaiq.New(mosaiq.WithModelDir("models/"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	cs, _ := svc.ClassifyContent(ctx, mosaiq.ClassifyContentRequest{
//	    Title: "Black holes",
//	    Text:  "Event horizons and Hawking radiation.",
//	})
//	fmt.Println(cs[0].ConceptID) // astronomy
//
// Classification of stored items runs as jobs: at most one job per content
// id is active, jobs run on a bounded worker pool and can be cancelled, and
// batches report progress per item. When the model cannot be loaded the
// Service still serves taxonomy reads and reports ClassificationAvailable
// false; classification calls fail fast with ErrServiceUnavailable.
//
// A Service is safe for concurrent use. Create once, reuse.
package mosaiq
