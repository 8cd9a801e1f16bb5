// Package epitaph produces the last words and cause-of-death flavor text
// written on graves.
package epitaph

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxLength bounds user supplied epitaphs, in characters.
const MaxLength = 140

var auto = []string{
	"Lived fast, died broke",
	"Should have hodled",
	"Gone but not forgotten... actually, probably forgotten",
	"Here lies a wallet that believed in zero fees",
	"Dust to dust, sats to void",
	"One sat short of survival",
	"The mempool doesn't care about your feelings",
	"Not your keys, not your sats, not your problem",
	"Born on-chain, died off-chain",
	"F in the chat",
	"It was a good run... was it though?",
	"I came, I saw, I got reaped",
	"Another one bites the dust",
	"404: Balance not found",
	"This wallet has left the Lightning network",
	"Farewell cruel blockchain",
	"Ran out of sats and patience",
	"The charge loop claims another soul",
	"Insufficient funds for existence",
	"It's not a bug, it's a feature: death",
	"Couldn't even afford to die with dignity",
	"Last seen: desperately looking for inbound liquidity",
	"Died doing what it loved: nothing",
	"Too stubborn to top up, too broke to live",
	"A moment of silence for this empty wallet",
	"The reaper waits for no wallet",
	"Balance: 0. Hope: also 0",
	"Gone to the great mempool in the sky",
	"This wallet made poor life choices",
	"RIP in sats",
	"The hourly charge was too much to bear",
	"Born free, died fee'd",
}

var causes = []string{
	"Starved on a {dayOfWeek}",
	"Ghosted by its owner",
	"Bled out at {age} old",
	"The charge loop showed no mercy",
	"Flatlined during the {hour}:00 harvest",
	"Ran dry after {charges} charges",
	"Couldn't scrape together 1 sat",
	"Found empty at the {hour}:00 sweep",
	"Abandoned and drained",
	"Neglected to the point of deletion",
	"Owner forgot it existed",
	"Died alone in the {hour}:00 culling",
	"Succumbed to insufficient funds",
	"The reaper came at {hour}:00",
	"Perished in the hourly purge",
}

var tags = regexp.MustCompile(`<[^>]*>`)

// Random picks one of the stock epitaphs.
func Random() string {
	return auto[rand.IntN(len(auto))]
}

// Sanitize trims a user message, caps it at MaxLength characters and strips
// markup. ok is false when nothing printable remains.
func Sanitize(message string) (string, bool) {
	s := strings.TrimSpace(message)
	if utf8.RuneCountInString(s) > MaxLength {
		s = string([]rune(s)[:MaxLength])
	}
	s = strings.TrimSpace(tags.ReplaceAllString(s, ""))
	return s, s != ""
}

// CauseOfDeath renders the flavor text for a wallet reaped at now. The pick
// is seeded by the wallet's age, its charge history and the hour of death,
// so the same wallet dying in the same hour always reads the same.
func CauseOfDeath(createdAt time.Time, totalCharged int64, now time.Time) string {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	seed := uint64(age/time.Hour)<<20 ^ uint64(totalCharged)
	rnd := rand.New(rand.NewPCG(seed, uint64(now.Unix()/3600)))
	template := causes[rnd.IntN(len(causes))]

	return strings.NewReplacer(
		"{dayOfWeek}", now.Weekday().String(),
		"{hour}", fmt.Sprintf("%02d", now.Hour()),
		"{age}", formatAge(age),
		"{charges}", fmt.Sprint(totalCharged),
	).Replace(template)
}

func formatAge(age time.Duration) string {
	days := int64(age / (24 * time.Hour))
	hours := int64(age%(24*time.Hour)) / int64(time.Hour)
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	return fmt.Sprintf("%dh", hours)
}
