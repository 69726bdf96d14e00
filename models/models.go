package models

import "time"

// Message is a single post on the board.
type Message struct {
	ID        string    `json:"id" bson:"id"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Delivery is a message on its way to live readers. Remote marks messages
// created by another instance, which this instance's store may not hold yet.
type Delivery struct {
	Message Message
	Remote  bool
}
