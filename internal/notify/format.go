package notify

import (
	"fmt"
	"strings"

	"github.com/lamstech/quickcards/internal/model"
)

// BuildCheckerMessage renders the SMS a buyer receives after payment. One
// numbered serial/PIN line per checker, followed by the reference code they
// need for later retrieval.
func BuildCheckerMessage(serviceName, referenceCode string, checkers []*model.Checker) string {
	var b strings.Builder

	b.WriteString("QuickCards Ghana\n")
	fmt.Fprintf(&b, "%s Checker(s):\n", serviceName)

	for i, c := range checkers {
		fmt.Fprintf(&b, "%d. Serial: %s, PIN: %s", i+1, c.SerialNumber, c.PinCode)
		if c.VoucherCode != "" {
			fmt.Fprintf(&b, ", Voucher: %s", c.VoucherCode)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Ref: %s\n", referenceCode)
	b.WriteString("Keep this reference to retrieve your checkers anytime.")

	return b.String()
}
