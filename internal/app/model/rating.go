package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Sentiment is the class derived from a rating.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// RatingKind tells item approvals apart from whole-post reactions.
type RatingKind string

const (
	RatingKindItem RatingKind = "item"
	RatingKindAll  RatingKind = "all"
)

// ItemRatingMarker is stored as the emoji of every item rating.
const ItemRatingMarker = "★"

// PostEmojis lists the whole-post reactions offered under a post, in display order.
var PostEmojis = []string{"🔥", "👍", "❤️", "👌", "🤷", "👎", "😡", "💩"}

var emojiSentiment = map[string]Sentiment{
	"🔥":  SentimentPositive,
	"👍":  SentimentPositive,
	"❤️": SentimentPositive,
	"👌":  SentimentPositive,
	"🤷":  SentimentNeutral,
	"👎":  SentimentNegative,
	"😡":  SentimentNegative,
	"💩":  SentimentNegative,
}

// SentimentOf maps a whole-post emoji to its class. Unknown emoji are neutral.
func SentimentOf(emoji string) Sentiment {
	if s, ok := emojiSentiment[emoji]; ok {
		return s
	}
	return SentimentNeutral
}

// Rating is one user reaction. Rows are append-only; a rater may rate many times.
type Rating struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	PostID    int64      `json:"post_id" gorm:"column:post_id;not null;index"`
	ItemIndex int        `json:"item_index" gorm:"column:item_idx;not null"`
	RaterID   int64      `json:"rater_id" gorm:"column:user_id;not null"`
	Emoji     string     `json:"emoji" gorm:"column:emoji;size:16"`
	Sentiment Sentiment  `json:"sentiment" gorm:"column:sentiment;size:16;not null"`
	Kind      RatingKind `json:"kind" gorm:"column:kind;size:8;not null"`
	Timestamp int64      `json:"ts" gorm:"column:ts;not null;index"`
}

func (Rating) TableName() string { return "rates" }

// RatingAction is a validated rating request: either an item approval
// (Kind=item, Item in 1..N) or a whole-post reaction (Kind=all, Emoji set).
type RatingAction struct {
	Kind  RatingKind `json:"kind"`
	Item  int        `json:"item,omitempty"`
	Emoji string     `json:"emoji,omitempty"`
}

// Validate checks the action against the number of items per post.
func (a RatingAction) Validate(itemsPerPost int) error {
	switch a.Kind {
	case RatingKindItem:
		if a.Item < 1 || a.Item > itemsPerPost {
			return fmt.Errorf("item must be in 1..%d, got %d", itemsPerPost, a.Item)
		}
	case RatingKindAll:
		if a.Emoji == "" {
			return fmt.Errorf("emoji is required for a whole-post rating")
		}
	default:
		return fmt.Errorf("unknown rating kind %q", a.Kind)
	}
	return nil
}

// Callback renders the action as the payload attached to a chat button.
func (a RatingAction) Callback() string {
	if a.Kind == RatingKindItem {
		return fmt.Sprintf("rate:item:%d", a.Item)
	}
	return "rate:all:" + a.Emoji
}

// ParseRatingCallback decodes "rate:item:<i>" and "rate:all:<emoji>" payloads.
func ParseRatingCallback(data string) (RatingAction, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != "rate" || parts[2] == "" {
		return RatingAction{}, fmt.Errorf("malformed rating payload %q", data)
	}
	switch RatingKind(parts[1]) {
	case RatingKindItem:
		idx, err := strconv.Atoi(parts[2])
		if err != nil {
			return RatingAction{}, fmt.Errorf("malformed item index %q", parts[2])
		}
		return RatingAction{Kind: RatingKindItem, Item: idx}, nil
	case RatingKindAll:
		return RatingAction{Kind: RatingKindAll, Emoji: parts[2]}, nil
	default:
		return RatingAction{}, fmt.Errorf("unknown rating kind %q", parts[1])
	}
}
