package dialogue

import "fmt"

const (
	msgMenu = "Hello! What would you like to do?\n" +
		"/book - book a counseling session\n" +
		"/support - contact support\n" +
		"/mentorship - apply for mentorship\n" +
		"/order - order a book\n" +
		"/review - review a past session\n" +
		"Send \"cancel\" at any step to stop."

	msgCancelled       = "Okay, cancelled. Nothing was saved. Send /start to see the menu."
	msgNothingToCancel = "There is nothing to cancel. Send /start to see the menu."
	msgInternal        = "Something went wrong, please try again later."
	msgConfirmHint     = "Reply \"yes\" to confirm or \"cancel\" to abort."
	msgConfirmRequired = "Please confirm or cancel."
)

const msgPaymentFailed = "We could not start the payment. Our team will contact you to complete it."

func formatPaymentPending(amountCents int64) string {
	return fmt.Sprintf("A payment request for %d.%02d has been sent to your phone. "+
		"We will confirm as soon as it is paid.", amountCents/100, amountCents%100)
}
