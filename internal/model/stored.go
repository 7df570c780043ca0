package model

import "time"

// StoredPost is a persisted row of hot_site or current_site
type StoredPost struct {
	Seq       int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	PostID    string    `gorm:"column:post_id;type:varchar(64);not null;default:''"`
	Community string    `gorm:"column:community;type:varchar(16);not null;default:''"`
	Category  string    `gorm:"column:category;type:varchar(128);not null;default:''"`
	Title     string    `gorm:"column:title;type:varchar(512);not null;default:''"`
	Link      string    `gorm:"column:link;type:varchar(1024);not null;default:''"`
	Writer    string    `gorm:"column:writer;type:varchar(128);not null;default:''"`
	RegDate   time.Time `gorm:"column:reg_date;not null"`
	Views     int       `gorm:"column:views;not null;default:0"`
	Recommend int       `gorm:"column:recommend;not null;default:0"`
	Content   string    `gorm:"column:content;type:text"`
	Images    string    `gorm:"column:images;type:text"`
}

// Canonical converts a stored row back into the canonical shape, rendering
// reg_date in loc.
func (s StoredPost) Canonical(loc *time.Location) CanonicalPost {
	regDate := s.RegDate
	if loc != nil {
		regDate = regDate.In(loc)
	}
	return CanonicalPost{
		PostID:    s.PostID,
		Community: s.Community,
		Category:  s.Category,
		Title:     s.Title,
		Link:      s.Link,
		Writer:    s.Writer,
		Content:   s.Content,
		RegDate:   regDate,
		Views:     s.Views,
		Recommend: s.Recommend,
		Images:    s.Images,
	}
}

// NewStoredPost builds the row inserted for a first sighting
func NewStoredPost(p CanonicalPost) StoredPost {
	return StoredPost{
		PostID:    p.PostID,
		Community: p.Community,
		Category:  p.Category,
		Title:     p.Title,
		Link:      p.Link,
		Writer:    p.Writer,
		RegDate:   p.RegDate,
		Views:     p.Views,
		Recommend: p.Recommend,
		Content:   p.Content,
		Images:    p.Images,
	}
}
