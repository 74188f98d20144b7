package ids

import (
	"crypto/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
)

const (
	suffixLen    = 8
	TicketPrefix = "TKT-"
)

// Generator issues human-legible case ids: <BASE36-MILLIS>-<SUFFIX>.
// The suffix is taken from a monotonic ULID so ids minted in the same
// millisecond never repeat within the process.
type Generator struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entropy *ulid.MonotonicEntropy
}

func NewGenerator(clock clockwork.Clock) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 1),
	}
}

// CaseID returns a new audit case id.
func (g *Generator) CaseID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	ms := ulid.Timestamp(now)
	id := ulid.MustNew(ms, g.entropy).String()

	var b strings.Builder
	b.WriteString(strings.ToUpper(strconv.FormatUint(ms, 36)))
	b.WriteByte('-')
	b.WriteString(id[len(id)-suffixLen:])
	return b.String()
}

// TicketID returns a new ticket id.
func (g *Generator) TicketID() string {
	return TicketPrefix + g.CaseID()
}
