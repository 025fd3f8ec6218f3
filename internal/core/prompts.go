package core

// prompts.go holds the fixed texts shown to the patient. The conversation
// itself is driven by the cloud functions; these cover greetings, notices and
// failures.

const (
	// FirstMessage greets the patient when the chat page is opened.
	FirstMessage = "Hello! I'm here to help collect your medical history before your visit. " +
		"Let's start with how you've been feeling. Have you had any symptoms in the past week?"

	// ErrorReply is shown when processMessage fails.
	ErrorReply = "Sorry, there was an error processing your message. Please try again."

	// ImageExtractedReply follows a medication photo that yielded text.
	ImageExtractedReply = "I've extracted medication information from the image. Please review the information in the chat input, make any necessary corrections, and send the message when you're ready."

	// ImageEmptyReply follows a medication photo that yielded nothing.
	ImageEmptyReply = "I couldn't extract any medication information from the image. Could you please type your medications and dosages in the chat input?"

	ImageErrorReply = "Sorry, there was an error processing your image. Could you please type out your medications and dosages?"

	QuestionErrorReply = "Sorry, there was an error processing your question. Please try again."

	RecommendationsErrorReply = "Error generating recommendations. Please try again."

	SummaryErrorReply = "Error generating summary. Please try again."

	FollowUpErrorReply = "Error loading follow-up content. Please try again."

	LookupErrorReply = "Error looking up patient medications. Please try again."

	// LookupNotFoundReply is shown when a patient id has no medications.
	LookupNotFoundReply = "No medications found for this patient"

	// InvalidPatientIDReply is shown for an empty patient id.
	InvalidPatientIDReply = "Please enter a valid Patient ID"

	// lookupMessageFormat is sent on the patient's behalf after a lookup.
	lookupMessageFormat = "Patient %s is taking the following medications: %s"

	// CapMessage is sent when the patient exceeds the message cap for a
	// session.
	CapMessage = "We've reached the message limit for this visit. Thank you for your answers; your doctor will review the summary."
)
