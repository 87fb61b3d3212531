package model

import "time"

// HitEvent is one recorded resolution of a redirect token.
type HitEvent struct {
	ID         int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	RedirectID int64  `json:"redirect_id" gorm:"column:redirect_id;not null;index:idx_hits_redirect_ip_ts,priority:1"`
	Timestamp  int64  `json:"ts" gorm:"column:ts;not null;index;index:idx_hits_redirect_ip_ts,priority:3"`
	IP         string `json:"ip" gorm:"column:ip;size:64;index:idx_hits_redirect_ip_ts,priority:2"`
	UserAgent  string `json:"user_agent" gorm:"column:ua;type:text"`
	Referer    string `json:"referer" gorm:"column:referer;type:text"`
}

func (HitEvent) TableName() string { return "redirect_hits" }

// Time returns the hit timestamp in UTC.
func (h HitEvent) Time() time.Time { return time.Unix(h.Timestamp, 0).UTC() }

// HitRow is a hit joined with its redirect target, as exported.
type HitRow struct {
	Timestamp int64  `gorm:"column:ts"`
	PostID    int64  `gorm:"column:post_id"`
	ItemIndex int    `gorm:"column:item_idx"`
	IP        string `gorm:"column:ip"`
	UserAgent string `gorm:"column:ua"`
	Referer   string `gorm:"column:referer"`
	Token     string `gorm:"column:token"`
	TargetURL string `gorm:"column:target_url"`
}

// HitNotice is the message published on the hit stream after a hit is recorded.
type HitNotice struct {
	ID         string    `json:"id"`
	HitID      int64     `json:"hit_id"`
	RedirectID int64     `json:"redirect_id"`
	Token      string    `json:"token"`
	PostID     int64     `json:"post_id"`
	ItemIndex  int       `json:"item_index"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	Referer    string    `json:"referer"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	HitStreamName     = "HITS"
	HitStreamSubject  = "hits.recorded"
	HitStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
