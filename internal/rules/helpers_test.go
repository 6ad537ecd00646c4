package rules

import (
	"github.com/bigcats-cc/email-sieve/internal/types"
)

// newTestMessage returns a fully populated message used across rule tests.
func newTestMessage() *types.EnrichedMessage {
	subject := "Quarterly report"
	importance := types.ImportanceHigh
	carter := types.EmailAddress{
		EmailAddress: "samantha.carter+lab@sg1.airforce.mil",
		LocalPart:    "samantha.carter",
		Domain:       "sg1.airforce.mil",
		DisplayName:  "Samantha Carter",
		PlusAlias:    "lab",
	}
	oneill := types.EmailAddress{
		EmailAddress: "jack.oneill@sg1.airforce.mil",
		LocalPart:    "jack.oneill",
		Domain:       "sg1.airforce.mil",
	}
	daniel := types.EmailAddress{
		EmailAddress: "daniel@abydos.example",
		LocalPart:    "daniel",
		Domain:       "abydos.example",
	}

	return &types.EnrichedMessage{
		Envelope: types.Envelope{
			From: oneill,
			To:   carter,
		},
		From:           []types.EmailAddress{oneill},
		To:             []types.EmailAddress{carter, daniel},
		Cc:             []types.EmailAddress{},
		Bcc:            nil,
		Importance:     &importance,
		Subject:        &subject,
		HasAttachments: true,
		IsMailingList:  false,
		Authentication: types.Authentication{
			DKIM:  types.AuthPass,
			SPF:   types.AuthFail,
			DMARC: types.AuthNoResult,
		},
		Headers: types.NewHeaders(
			types.HeaderField{Name: "Subject", Value: "Quarterly report"},
			types.HeaderField{Name: "X-Priority", Value: "1"},
			types.HeaderField{Name: "Received", Value: "from a"},
			types.HeaderField{Name: "Received", Value: "from b"},
		),
		Body: types.Body{
			Text: "Numbers are up.",
			HTML: "<p>Numbers are up.</p>",
		},
		Size: 2048,
	}
}

// counter is a predicate that records how often it ran.
type counter struct {
	calls  int
	result bool
}

func (c *counter) predicate() types.Condition {
	return types.Func("counter", func(*types.EnrichedMessage) bool {
		c.calls++
		return c.result
	})
}

var (
	alwaysTrue  = types.Func("true", func(*types.EnrichedMessage) bool { return true })
	alwaysFalse = types.Func("false", func(*types.EnrichedMessage) bool { return false })
)
