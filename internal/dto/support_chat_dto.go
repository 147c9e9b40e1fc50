package dto

import "tourbook-chat/pkg/supportchat"

type HistoryQuery struct {
	Mode supportchat.Mode `query:"mode" validate:"required,oneof=support ai"`
}

type OperatorReplyRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type DeleteSessionRequest struct {
	// ClearMessages defaults to true when omitted.
	ClearMessages *bool `json:"clearMessages"`
}

type DeleteMessagesRequest struct {
	MessageIDs []string `json:"messageIds" validate:"required,min=1,max=500,dive,uuid"`
}

type DeleteMessagesResponse struct {
	Success bool     `json:"success"`
	Deleted []string `json:"deleted"`
}

type OperatorMessageResponse struct {
	Success bool                    `json:"success"`
	Message supportchat.WireMessage `json:"message"`
}
