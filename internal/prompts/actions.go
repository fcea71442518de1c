package prompts

import "fmt"

const actionResultTemplate = `The requested actions finished. Here is the result:

%s

Reply to the user with a short, friendly message summarizing what happened and what was found. If some actions failed, say which ones and why. Write plain text, not JSON.`

const actionErrorTemplate = `I ran into this error: %q

Reply to the user with a short, friendly message explaining what went wrong. Write plain text, not JSON.`

// ActionResult asks the model to narrate a combined action result.
// resultJSON is the serialized result.
func ActionResult(resultJSON string) string {
	return fmt.Sprintf(actionResultTemplate, resultJSON)
}

// ActionError asks the model to narrate a failure.
func ActionError(msg string) string {
	return fmt.Sprintf(actionErrorTemplate, msg)
}
