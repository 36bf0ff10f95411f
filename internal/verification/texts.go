package verification

import (
	"fmt"
	"html"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
)

func mention(m models.Member) string {
	return html.EscapeString(m.DisplayName())
}

func groupCaptchaPrompt(m models.Member, code string, timeoutMinutes int) string {
	return fmt.Sprintf(
		"🔐 <b>Verification</b>\n\nWelcome %s! Please send me this code in a private message to prove you are human:\n\n"+
			"📝 Code: <code>%s</code>\n\n"+
			"⏱️ You have %d minutes, otherwise you will be removed from the group.",
		mention(m), code, timeoutMinutes,
	)
}

func privateCaptchaPrompt(chat models.Chat, code string, timeoutMinutes int) string {
	return fmt.Sprintf(
		"🔐 <b>Verification</b>\n\nWelcome to %s! Reply with this code:\n\n"+
			"📝 Code: <code>%s</code>\n\n"+
			"⏱️ You have %d minutes.",
		html.EscapeString(chat.Title), code, timeoutMinutes,
	)
}

func privatePromptFailed(m models.Member) string {
	return fmt.Sprintf("⚠️ Could not send the code to %s, please start a private chat with the bot first.", mention(m))
}

func privateVerified() string {
	return "✅ Verification passed! Welcome to the group."
}

func promptVerified(m models.Member) string {
	return fmt.Sprintf("✅ %s passed the verification!", mention(m))
}

func groupWelcome(m models.Member) string {
	return fmt.Sprintf("🎉 Welcome %s to the group!", mention(m))
}

func privateRetry(remaining int) string {
	if remaining == 1 {
		return "❌ Wrong code! You have 1 attempt left."
	}
	return fmt.Sprintf("❌ Wrong code! You have %d attempts left.", remaining)
}

func kickedAttempts(m models.Member) string {
	return fmt.Sprintf("❌ %s was removed after too many failed verification attempts.", mention(m))
}

func kickedTimeout(m models.Member) string {
	return fmt.Sprintf("⏱️ %s did not complete the verification in time and was removed.", mention(m))
}

func promptApprovedBy(admin, m models.Member) string {
	return fmt.Sprintf("✅ %s approved %s", mention(admin), mention(m))
}

func promptRejectedBy(admin, m models.Member) string {
	return fmt.Sprintf("❌ %s rejected %s", mention(admin), mention(m))
}

func approvalRequest(m models.Member) string {
	return fmt.Sprintf("🆕 %s asks to join, waiting for an administrator:", mention(m))
}
