package session

const (
	// FirstQuestion asks for the review itself.
	FirstQuestion = "summarize the code above and explain all the vulnerabilities in the code in a table " +
		"and categorize the vulnerabilities as high, medium, low and also suggest improvements to fix the vulnerabilities"

	// SecondQuestion is the follow-up that depends on the first answer.
	SecondQuestion = "can you create a table for the above findings?"
)

// FixedQuestions returns the two review questions in order.
func FixedQuestions() []string {
	return []string{FirstQuestion, SecondQuestion}
}
