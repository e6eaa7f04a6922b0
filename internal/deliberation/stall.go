package deliberation

import (
	"hash/fnv"
	"sort"

	"github.com/tradecouncil/orchestrator/internal/session"
)

// Classification of one completed round.
type Classification int

const (
	Progress Classification = iota
	Stall
)

func (c Classification) String() string {
	if c == Stall {
		return "stall"
	}
	return "progress"
}

// StallDetector classifies rounds against the session state it has already
// observed. One detector per deliberation loop; not safe for concurrent use.
type StallDetector struct {
	seenPayloads    map[uint64]struct{}
	proposalVersion int
	votesDigest     uint64
}

// NewStallDetector creates a detector primed on the session's current
// proposal and vote state, so the first classified round is measured against
// the state at loop start rather than against zero values.
func NewStallDetector(sess *session.Session) *StallDetector {
	version := 0
	if sess.Proposal != nil {
		version = sess.Proposal.Version
	}
	return &StallDetector{
		seenPayloads:    make(map[uint64]struct{}),
		proposalVersion: version,
		votesDigest:     votesDigest(sess, version),
	}
}

// Classify inspects the session after a round completes. A round is progress
// when the proposal changed, any vote changed, or a message carried a novel
// structured payload. Everything else is a stall.
func (d *StallDetector) Classify(sess *session.Session, roundMessages []session.Message) Classification {
	progress := false

	version := 0
	if sess.Proposal != nil {
		version = sess.Proposal.Version
	}
	if version != d.proposalVersion {
		d.proposalVersion = version
		progress = true
	}

	if digest := votesDigest(sess, version); digest != d.votesDigest {
		d.votesDigest = digest
		progress = true
	}

	for _, msg := range roundMessages {
		if !msg.HasStructuredPayload() {
			continue
		}
		fp := msg.Fingerprint()
		if _, seen := d.seenPayloads[fp]; !seen {
			d.seenPayloads[fp] = struct{}{}
			progress = true
		}
	}

	if progress {
		return Progress
	}
	return Stall
}

// votesDigest hashes the vote map together with the proposal version so that
// a cleared-and-recast identical vote set still registers as change.
func votesDigest(sess *session.Session, version int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte{byte(version), byte(version >> 8)})
	names := make([]string, 0, len(sess.Votes))
	for name := range sess.Votes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = h.Write([]byte(name))
		_, _ = h.Write([]byte{'='})
		_, _ = h.Write([]byte(sess.Votes[name]))
		_, _ = h.Write([]byte{';'})
	}
	return h.Sum64()
}
