package model

import "time"

type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    uint64    `gorm:"column:chat_id;index;not null" json:"chatId"`
	SenderUID string    `gorm:"column:sender_uid;size:128;index;not null" json:"senderUid"`
	Text      string    `gorm:"column:text;type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
