package verification

import (
	"fmt"
	"strconv"
	"strings"
)

type CallbackAction string

const (
	// Override buttons under a captcha prompt.
	CallbackActionCaptchaApprove CallbackAction = "captcha_approve"
	CallbackActionCaptchaReject  CallbackAction = "captcha_reject"

	// Buttons under an admin-mode join request.
	CallbackActionJoinApprove CallbackAction = "join_approve"
	CallbackActionJoinReject  CallbackAction = "join_reject"
)

func (a CallbackAction) String() string {
	return string(a)
}

// DataMatches checks raw callback data in telebot's "\funique|payload" form.
func (a CallbackAction) DataMatches(data string) bool {
	cringePrefix := "\f" + a.String()
	return data == cringePrefix || strings.HasPrefix(data, cringePrefix+"|")
}

func (a CallbackAction) Payload(memberID int64) string {
	return strconv.FormatInt(memberID, 10)
}

var callbackActions = []CallbackAction{
	CallbackActionCaptchaApprove,
	CallbackActionCaptchaReject,
	CallbackActionJoinApprove,
	CallbackActionJoinReject,
}

// ParseCallbackData extracts the action and target member id.
func ParseCallbackData(data string) (CallbackAction, int64, error) {
	for _, action := range callbackActions {
		if !action.DataMatches(data) {
			continue
		}
		_, payload, ok := strings.Cut(data, "|")
		if !ok {
			return "", 0, fmt.Errorf("callback %s has no member id", action)
		}
		memberID, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("parsing member id %q: %w", payload, err)
		}
		return action, memberID, nil
	}
	return "", 0, fmt.Errorf("unknown callback data %q", data)
}
