package conversation

import (
	"watchwise/internal/prefs"
	"watchwise/internal/questions"
)

// StepRequest is the conversation step payload: the full history so far.
type StepRequest struct {
	ConversationHistory []Entry `json:"conversationHistory" validate:"max=30,dive"`
}

// StepResponse is what transports return for one step.
type StepResponse struct {
	Ready              bool                `json:"ready"`
	Confidence         int                 `json:"confidence"`
	NeedsClarification bool                `json:"needsClarification"`
	Message            string              `json:"message,omitempty"`
	NextQuestion       *questions.Question `json:"nextQuestion,omitempty"`
	Preferences        *prefs.Set          `json:"preferences,omitempty"`
}

// Response renders a state for transports.
func (s State) Response() StepResponse {
	return StepResponse{
		Ready:              s.Phase == Ready,
		Confidence:         s.Confidence,
		NeedsClarification: s.Phase == NeedsClarification,
		Message:            s.Message,
		NextQuestion:       s.Question,
		Preferences:        s.Preferences,
	}
}
