package types

import "fmt"

// PropagateMode selects which messages of a topic an edit applies to.
type PropagateMode string

const (
	ChangeOne   PropagateMode = "change_one"
	ChangeAll   PropagateMode = "change_all"
	ChangeLater PropagateMode = "change_later"
)

func ParsePropagateMode(s string) (PropagateMode, error) {
	switch m := PropagateMode(s); m {
	case ChangeOne, ChangeAll, ChangeLater:
		return m, nil
	}
	return "", fmt.Errorf("invalid propagate_mode %q", s)
}

// Topic is one entry of a stream's topic list.
type Topic struct {
	Name  string `json:"name"`
	MaxID int64  `json:"max_id"`
}

// UploadResult is returned by Zulip for a file upload.
type UploadResult struct {
	Result string `json:"result"`
	Msg    string `json:"msg"`
	URI    string `json:"uri"`
}

// SendResult is returned by Zulip for a sent message.
type SendResult struct {
	Result string `json:"result"`
	Msg    string `json:"msg"`
	ID     int64  `json:"id"`
}
