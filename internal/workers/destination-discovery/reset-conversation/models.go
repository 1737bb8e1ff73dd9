package resetconversation

type Input struct {
	TripID int64 `json:"tripId"`
	UserID int64 `json:"userId"`
}

type Output struct {
	Message string `json:"message"`
}
