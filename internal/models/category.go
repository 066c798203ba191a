package models

// Category - тег, который можно прикрепить к посту
type Category struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
}
