package testutil

// Book is one entry of the science-fiction catalogue used by scenario tests.
type Book struct {
	Name        string
	Description string
	Author      string
	Year        int
	// Vector is a hand-made 8-dimensional embedding of Description. Its axes are
	// alien, space, humanity, dystopia, time, politics, technology and comedy.
	Vector []float32
}

// AlienInvasion is the embedding of the query "alien invasion" in the Books space.
//
// Under Euclidean distance the nearest books are, in order, The Hitchhiker's
// Guide to the Galaxy, The Three-Body Problem and The Andromeda Strain.
// Restricted to books published since 2000 only The Three-Body Problem and
// The Hunger Games remain, in that order. Among the first three books Ender's
// Game is the nearest.
var AlienInvasion = []float32{1.0, 0.6, 0.2, 0, 0, 0, 0, 0.2}

// Books returns a fresh copy of the catalogue in insertion order.
func Books() []Book {
	return []Book{
		{"The Time Machine", "A man travels through time and witnesses the evolution of humanity.", "H.G. Wells", 1895,
			[]float32{0.0, 0.1, 0.7, 0.1, 0.9, 0.0, 0.2, 0.0}},
		{"Ender's Game", "A young boy is trained to become a military leader in a war against an alien race.", "Orson Scott Card", 1985,
			[]float32{0.6, 0.5, 0.1, 0.1, 0.0, 0.7, 0.1, 0.0}},
		{"Brave New World", "A dystopian society where people are genetically engineered and conditioned to conform to a strict social hierarchy.", "Aldous Huxley", 1932,
			[]float32{0.0, 0.0, 0.5, 0.9, 0.1, 0.5, 0.3, 0.0}},
		{"The Hitchhiker's Guide to the Galaxy", "A comedic science fiction series following the misadventures of an unwitting human and his alien friend.", "Douglas Adams", 1979,
			[]float32{0.8, 0.6, 0.3, 0.0, 0.0, 0.0, 0.1, 0.6}},
		{"Dune", "A desert planet is the site of political intrigue and power struggles.", "Frank Herbert", 1965,
			[]float32{0.1, 0.6, 0.1, 0.1, 0.1, 0.9, 0.0, 0.0}},
		{"Foundation", "A mathematician develops a science to predict the future of humanity and works to save civilization from collapse.", "Isaac Asimov", 1951,
			[]float32{0.0, 0.4, 0.8, 0.1, 0.6, 0.4, 0.2, 0.0}},
		{"Snow Crash", "A futuristic world where the internet has evolved into a virtual reality metaverse.", "Neal Stephenson", 1992,
			[]float32{0.0, 0.0, 0.1, 0.3, 0.5, 0.1, 0.9, 0.1}},
		{"Neuromancer", "A hacker is hired to pull off a near-impossible hack and gets pulled into a web of intrigue.", "William Gibson", 1984,
			[]float32{0.0, 0.0, 0.1, 0.3, 0.3, 0.3, 0.9, 0.0}},
		{"The War of the Worlds", "A Martian invasion of Earth throws humanity into chaos.", "H.G. Wells", 1898,
			[]float32{0.9, 0.2, 0.9, 0.1, 0.0, 0.2, 0.0, 0.0}},
		{"The Hunger Games", "A dystopian society where teenagers are forced to fight to the death in a televised spectacle.", "Suzanne Collins", 2008,
			[]float32{0.0, 0.0, 0.4, 0.9, 0.1, 0.6, 0.1, 0.0}},
		{"The Andromeda Strain", "A deadly virus from outer space threatens to wipe out humanity.", "Michael Crichton", 1969,
			[]float32{0.6, 0.7, 0.5, 0.0, 0.0, 0.0, 0.2, 0.0}},
		{"The Left Hand of Darkness", "A human ambassador is sent to a planet where the inhabitants are genderless and can change gender at will.", "Ursula K. Le Guin", 1969,
			[]float32{0.4, 0.6, 0.6, 0.0, 0.0, 0.5, 0.0, 0.0}},
		{"The Three-Body Problem", "Humans encounter an alien civilization that lives in a dying system.", "Liu Cixin", 2008,
			[]float32{0.9, 0.5, 0.5, 0.0, 0.2, 0.2, 0.2, 0.0}},
	}
}
