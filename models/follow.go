package models

import "time"

// Follow is a directed edge: FollowerID sees FollowedID's posts in its timeline.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FollowedID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"followed_id"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
}
