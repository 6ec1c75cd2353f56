package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/vertaai/driftgate/pkg/fault"
)

// SlackNotifier posts drift notifications to Slack channels.
type SlackNotifier struct {
	client *slack.Client
}

// NewSlackNotifier builds a notifier from a bot token.
func NewSlackNotifier(token string) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token)}
}

// PostNotification sends message to channel. Slack rate limits surface as
// retryable RateLimited errors so the drift driver re-enqueues instead of
// failing the candidate.
func (n *SlackNotifier) PostNotification(ctx context.Context, channel, message string) error {
	_, _, err := n.client.PostMessageContext(ctx, channel,
		slack.MsgOptionText(message, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) {
			return fault.Wrap(fault.KindRateLimited, err, "slack post to %s", channel)
		}
		return fault.Wrap(fault.KindTransport, err, "slack post to %s", channel)
	}
	return nil
}

// FormatApprovalMessage renders the human-approval request for one patch
// proposal.
func FormatApprovalMessage(driftID, driftType, docID, summary string, confidence float64) string {
	return fmt.Sprintf(
		"*Doc drift detected* (`%s`, type `%s`)\nTarget: `%s`\nConfidence: %.0f%%\n%s\nApprove, request edits, reject, or snooze from the dashboard.",
		driftID, driftType, docID, confidence*100, summary,
	)
}
