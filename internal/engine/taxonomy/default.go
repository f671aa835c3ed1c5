package taxonomy

// defaultNode is the nested authoring form of the built-in taxonomy.
type defaultNode struct {
	id, label, def string
	synonyms       []string
	children       []defaultNode
}

// defaultTree is the built-in knowledge taxonomy used when no taxonomy
// resource is configured.
var defaultTree = []defaultNode{
	{
		id: "physical_sciences", label: "Physical Sciences",
		def: "Study of non-living systems, matter and the laws of nature",
		children: []defaultNode{
			{id: "physics", label: "Physics", def: "Matter, energy, motion, forces, and the fundamental laws of the universe", synonyms: []string{"quantum mechanics", "relativity"}},
			{id: "chemistry", label: "Chemistry", def: "Composition, structure, and reactions of substances and molecules"},
			{id: "astronomy", label: "Astronomy", def: "Stars, planets, galaxies, and space exploration", synonyms: []string{"astrophysics", "cosmology", "space"}},
			{id: "earth_sciences", label: "Earth Sciences", def: "Geology, oceans, weather, and the climate system", synonyms: []string{"geology", "climate science"}},
		},
	},
	{
		id: "life_sciences", label: "Life Sciences",
		def: "Study of living organisms and life processes",
		children: []defaultNode{
			{id: "biology", label: "Biology", def: "Cells, genetics, evolution, and living organisms", synonyms: []string{"genetics"}},
			{id: "medicine", label: "Medicine", def: "Diagnosis, treatment, and prevention of disease", synonyms: []string{"healthcare", "clinical research"}},
			{id: "neuroscience", label: "Neuroscience", def: "The brain, the nervous system, and cognition"},
			{id: "ecology", label: "Ecology", def: "Ecosystems, biodiversity, and the environment", synonyms: []string{"conservation"}},
		},
	},
	{
		id: "formal_sciences", label: "Formal Sciences",
		def: "Mathematics, logic, and abstract formal systems",
		children: []defaultNode{
			{id: "mathematics", label: "Mathematics", def: "Numbers, structures, proofs, algebra, geometry, and calculus"},
			{id: "statistics", label: "Statistics", def: "Data analysis, probability, inference, and experimental design"},
			{id: "computer_science", label: "Computer Science", def: "Algorithms, data structures, complexity, and the theory of computation"},
		},
	},
	{
		id: "technology", label: "Technology",
		def: "Engineering and application of tools, software, and machines",
		children: []defaultNode{
			{id: "software_engineering", label: "Software Engineering", def: "Programming, software design, testing, and development practices", synonyms: []string{"programming", "coding"}},
			{
				id: "artificial_intelligence", label: "Artificial Intelligence", def: "Machines that learn, reason, and perceive", synonyms: []string{"AI"},
				children: []defaultNode{
					{id: "machine_learning", label: "Machine Learning", def: "Training models from data, neural networks, and deep learning", synonyms: []string{"deep learning", "ML"}},
					{id: "natural_language_processing", label: "Natural Language Processing", def: "Language models, text understanding, and machine translation", synonyms: []string{"NLP"}},
				},
			},
			{id: "cybersecurity", label: "Cybersecurity", def: "Protecting systems and data from attacks, vulnerabilities, and breaches", synonyms: []string{"information security", "infosec"}},
			{id: "web_development", label: "Web Development", def: "Websites, browsers, frontend and backend web applications"},
			{id: "hardware", label: "Hardware", def: "Computer chips, processors, devices, and electronics", synonyms: []string{"semiconductors"}},
		},
	},
	{
		id: "social_sciences", label: "Social Sciences",
		def: "Study of human society and social relationships",
		children: []defaultNode{
			{id: "economics", label: "Economics", def: "Markets, trade, inflation, monetary policy, and the production of wealth"},
			{id: "psychology", label: "Psychology", def: "Human behavior, emotion, and the mind"},
			{id: "politics", label: "Politics", def: "Government, elections, public policy, and international relations", synonyms: []string{"political science"}},
			{id: "sociology", label: "Sociology", def: "Social institutions, communities, and culture"},
		},
	},
	{
		id: "humanities", label: "Humanities",
		def: "Study of human culture, thought, and expression",
		children: []defaultNode{
			{id: "history", label: "History", def: "Past events, civilizations, and historical analysis"},
			{id: "philosophy", label: "Philosophy", def: "Ethics, metaphysics, knowledge, and reasoning"},
			{id: "literature", label: "Literature", def: "Novels, poetry, books, and literary criticism"},
			{id: "linguistics", label: "Linguistics", def: "The structure, sounds, and evolution of human language"},
		},
	},
	{
		id: "arts", label: "Arts",
		def: "Creative expression and aesthetic works",
		children: []defaultNode{
			{id: "music", label: "Music", def: "Songs, composition, instruments, and musical performance"},
			{id: "visual_arts", label: "Visual Arts", def: "Painting, sculpture, photography, and illustration"},
			{id: "film", label: "Film", def: "Movies, cinema, directing, and television", synonyms: []string{"cinema"}},
			{id: "design", label: "Design", def: "Graphic design, user experience, and product design", synonyms: []string{"UX"}},
		},
	},
	{
		id: "business", label: "Business",
		def: "Commerce, organizations, and the economy of firms",
		children: []defaultNode{
			{id: "finance", label: "Finance", def: "Investing, stocks, bonds, banking, and personal finance", synonyms: []string{"investing"}},
			{id: "entrepreneurship", label: "Entrepreneurship", def: "Startups, founders, venture capital, and building companies", synonyms: []string{"startups"}},
			{id: "marketing", label: "Marketing", def: "Advertising, branding, sales, and customer growth"},
			{id: "management", label: "Management", def: "Leadership, teams, strategy, and organizational productivity", synonyms: []string{"leadership"}},
		},
	},
	{
		id: "health", label: "Health & Wellbeing",
		def: "Personal health, fitness, and wellbeing",
		children: []defaultNode{
			{id: "nutrition", label: "Nutrition", def: "Diet, food, vitamins, and healthy eating"},
			{id: "fitness", label: "Fitness", def: "Exercise, training, running, and strength", synonyms: []string{"exercise"}},
			{id: "mental_health", label: "Mental Health", def: "Stress, anxiety, depression, sleep, and mindfulness"},
		},
	},
}

// DefaultRecords returns the built-in taxonomy in depth-first order.
func DefaultRecords() []Record {
	var out []Record
	var walk func(parent string, nodes []defaultNode)
	walk = func(parent string, nodes []defaultNode) {
		for _, n := range nodes {
			out = append(out, Record{
				ID:         n.id,
				Label:      n.label,
				Definition: n.def,
				Synonyms:   n.synonyms,
				Parent:     parent,
			})
			walk(n.id, n.children)
		}
	}
	walk("", defaultTree)
	return out
}
