package model

// Post is one published item group. Rows are never updated or deleted.
type Post struct {
	ID         int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageRef int64 `json:"message_ref" gorm:"column:channel_msg_id;not null;index"`
	CreatedAt  int64 `json:"created_at" gorm:"column:created_at;not null;index"`
}

func (Post) TableName() string { return "posts" }
