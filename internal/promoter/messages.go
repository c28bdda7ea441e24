package promoter

import (
	"fmt"
	"strings"
)

func mergedMsg(c *Candidate) string {
	return fmt.Sprintf(":merged: PR merged to stage: <%s|%d: %s>.", c.URL, c.Number, c.Title)
}

func openedSyncPRMsg(url string, number int) string {
	return fmt.Sprintf(":fast_forward: Created <%s|Stage to Main PR %d>", url, number)
}

func testingCanStartComment(teamMentions []string) string {
	return strings.TrimSpace("Testing can start " + strings.Join(teamMentions, " "))
}
