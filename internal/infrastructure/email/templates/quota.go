package templates

import (
	"fmt"
	"strings"
	"time"
)

type QuotaExhaustedProps struct {
	Tier       string
	Limit      int
	ResetsAt   *time.Time
	UpgradeURL string
}

// GetQuotaExhaustedContent tells a user their report allowance is used up.
func GetQuotaExhaustedContent(props QuotaExhaustedProps) string {
	var b strings.Builder
	b.WriteString(GetParagraph("Hi there,"))
	b.WriteString(GetParagraph(fmt.Sprintf("You have used all %d reports included in your %s plan.", props.Limit, props.Tier)))
	if props.ResetsAt != nil {
		b.WriteString(GetParagraph(fmt.Sprintf("Your allowance resets on %s. Reports you have already generated stay available in your history.",
			props.ResetsAt.Format("2 January 2006"))))
	} else {
		b.WriteString(GetParagraph("Reports you have already generated stay available in your history."))
	}
	if props.UpgradeURL != "" {
		b.WriteString(GetButton(ButtonProps{Text: "Upgrade your plan", URL: props.UpgradeURL}))
	}
	return b.String()
}
