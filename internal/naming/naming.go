// Package naming generates human-readable wallet names.
package naming

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// DefaultPrefix starts every generated name.
const DefaultPrefix = "lncurl"

const maxLocalTries = 5

// ErrExhausted is returned when every local candidate was already taken.
var ErrExhausted = errors.New("no free wallet name found")

// Checker reports whether a name is already used by a live or dead wallet.
type Checker interface {
	NameTaken(ctx context.Context, name string) (bool, error)
}

type mood struct {
	adjectives []string
	nouns      []string
}

var moods = []mood{
	{ // chaotic
		adjectives: []string{"chaotic", "reckless", "feral", "unhinged", "volatile", "rogue", "wild", "turbulent", "frantic", "manic", "erratic", "restless", "savage", "untamed", "rabid"},
		nouns:      []string{"gremlin", "tornado", "goblin", "spark", "havoc", "blitz", "riot", "storm", "fury", "rampage", "tempest", "vortex", "surge", "bolt", "inferno"},
	},
	{ // doomed
		adjectives: []string{"doomed", "forsaken", "hopeless", "tragic", "fallen", "wretched", "damned", "fading", "terminal", "sinking", "crumbling", "withered", "blighted", "cursed", "forlorn"},
		nouns:      []string{"pickle", "soul", "wraith", "husk", "ember", "shadow", "remnant", "phantom", "echo", "cinder", "ash", "relic", "shard", "wisp", "void"},
	},
	{ // cursed
		adjectives: []string{"cursed", "hexed", "jinxed", "haunted", "bewitched", "blighted", "tainted", "stricken", "afflicted", "plagued", "scarred", "tormented", "vexed", "spooked", "possessed"},
		nouns:      []string{"waffle", "toad", "raven", "moth", "serpent", "spider", "crow", "bat", "skull", "bone", "crypt", "specter", "ghoul", "wraith", "banshee"},
	},
	{ // legendary
		adjectives: []string{"mighty", "epic", "supreme", "cosmic", "immortal", "divine", "legendary", "eternal", "radiant", "sovereign", "titan", "stellar", "mythic", "glorious", "exalted"},
		nouns:      []string{"phoenix", "dragon", "titan", "lion", "eagle", "wolf", "narwhal", "kraken", "griffin", "pegasus", "hydra", "sphinx", "colossus", "leviathan", "wyvern"},
	},
	{ // haunted
		adjectives: []string{"haunted", "ghostly", "spectral", "ethereal", "phantom", "eerie", "shadowy", "nocturnal", "twilight", "misty", "hollow", "silent", "pale", "frostbitten", "moonlit"},
		nouns:      []string{"whisper", "shade", "fog", "mist", "chill", "dusk", "silence", "frost", "void", "abyss", "gloom", "haunt", "dirge", "requiem", "elegy"},
	},
	{ // absurd
		adjectives: []string{"confused", "clumsy", "dizzy", "goofy", "wonky", "bumbling", "wobbly", "soggy", "fluffy", "squishy", "cranky", "grumpy", "sleepy", "chunky", "funky"},
		nouns:      []string{"potato", "noodle", "walrus", "llama", "penguin", "pancake", "muffin", "nugget", "pickle", "waffle", "turnip", "dumpling", "biscuit", "pretzel", "burrito"},
	},
}

// Generator composes names as <prefix>_<adjective>_<noun>, adding digits on
// retries. It is safe for concurrent use.
type Generator struct {
	prefix  string
	checker Checker

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator builds a generator checking candidates against checker. A nil
// rnd seeds one randomly.
func NewGenerator(checker Checker, rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{prefix: DefaultPrefix, checker: checker, rnd: rnd}
}

// Generate returns an unused name. attempt is the caller's provisioning
// attempt: the first attempt tries a bare name, later ones add a two digit
// suffix. Local collisions are retried with a growing suffix.
func (g *Generator) Generate(ctx context.Context, attempt int) (string, error) {
	bound := 0
	if attempt > 0 {
		bound = 100
	}
	for try := 0; try < maxLocalTries; try++ {
		name := g.candidate(bound)
		taken, err := g.checker.NameTaken(ctx, name)
		if err != nil {
			return "", fmt.Errorf("check name %q: %w", name, err)
		}
		if !taken {
			return name, nil
		}
		if bound == 0 {
			bound = 1000
		} else {
			bound *= 10
		}
	}
	return "", ErrExhausted
}

func (g *Generator) candidate(suffixBound int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := moods[g.rnd.IntN(len(moods))]
	name := fmt.Sprintf("%s_%s_%s", g.prefix, m.adjectives[g.rnd.IntN(len(m.adjectives))], m.nouns[g.rnd.IntN(len(m.nouns))])
	if suffixBound > 0 {
		name += fmt.Sprint(g.rnd.IntN(suffixBound))
	}
	return name
}
