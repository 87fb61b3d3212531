package model

// WholePostItem is the item index reserved for ratings of the whole post.
// It never appears on a RedirectTarget.
const WholePostItem = 0

// RedirectTarget binds a short token to one item of a post.
type RedirectTarget struct {
	ID        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Token     string `json:"token" gorm:"size:32;not null;uniqueIndex"`
	PostID    int64  `json:"post_id" gorm:"column:post_id;not null;index"`
	ItemIndex int    `json:"item_index" gorm:"column:item_idx;not null"`
	TargetURL string `json:"target_url" gorm:"column:target_url;type:text;not null"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;not null"`
}

func (RedirectTarget) TableName() string { return "redirects" }
