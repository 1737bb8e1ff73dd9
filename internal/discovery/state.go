package discovery

import "destination-discovery/internal/models"

// WorkflowState is the working copy of a conversation for one request. It is
// rebuilt from the persisted record every time; iteration counters are not
// persisted and start again at zero.
type WorkflowState struct {
	Info              string
	QuestionQueue     []string
	History           []models.QAPair
	DestinationsText  string
	Destinations      []Destination
	Stage             models.Stage
	QuestionIteration int
	DestIteration     int
	QuestionGrade     string
	QuestionNotes     []string
	DestGrade         string
	DestNotes         []string
}

func (s WorkflowState) clone() WorkflowState {
	c := s
	c.QuestionQueue = append([]string{}, s.QuestionQueue...)
	c.History = append([]models.QAPair{}, s.History...)
	c.Destinations = append([]Destination(nil), s.Destinations...)
	c.QuestionNotes = append([]string(nil), s.QuestionNotes...)
	c.DestNotes = append([]string(nil), s.DestNotes...)
	return c
}

// FromRecord builds the working state from a persisted record. Destinations
// are parsed again from the stored model text, so a padded set comes back
// without its "Option N" placeholders. The three destinations shown to the
// user are read from the recommendations rows, never from this state.
func FromRecord(rec *models.ConversationState) WorkflowState {
	st := WorkflowState{
		Info:             rec.UserInfo,
		QuestionQueue:    append([]string{}, rec.QuestionQueue...),
		History:          append([]models.QAPair{}, rec.QAHistory...),
		DestinationsText: rec.DestinationsText,
		Stage:            rec.Stage,
		QuestionGrade:    rec.QuestionGrade,
		QuestionNotes:    append([]string(nil), rec.QuestionNotes...),
		DestGrade:        rec.DestGrade,
		DestNotes:        append([]string(nil), rec.DestNotes...),
	}
	if st.Stage == "" {
		st.Stage = models.StageInitial
	}
	if rec.DestinationsText != "" {
		st.Destinations = ParseDestinations(rec.DestinationsText)
	}
	return st
}

// ToRecord writes the persisted fields of st into rec. Identity, progress
// counters and timestamps in rec are left alone.
func ToRecord(st WorkflowState, rec *models.ConversationState) {
	rec.UserInfo = st.Info
	rec.QuestionQueue = append([]string{}, st.QuestionQueue...)
	rec.QAHistory = append([]models.QAPair{}, st.History...)
	rec.DestinationsText = st.DestinationsText
	rec.Stage = st.Stage
	rec.QuestionGrade = st.QuestionGrade
	rec.QuestionNotes = append([]string(nil), st.QuestionNotes...)
	rec.DestGrade = st.DestGrade
	rec.DestNotes = append([]string(nil), st.DestNotes...)
}
