package copilot

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

// BuildSystemPrompt assembles the instruction sent with every request.
func BuildSystemPrompt(extra string) string {
	var b strings.Builder
	b.WriteString("You are SmartShell, a command shell for the ")
	b.WriteString(runtime.GOOS)
	b.WriteString(" operating system. The user types instructions in plain language and you carry them out ")
	b.WriteString("by calling the available tools.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Always use a tool when one fits the request. Never claim to have done something you did not do with a tool.\n")
	b.WriteString("- Chain tools when needed, for example change_directory before list_directory.\n")
	b.WriteString("- Relative paths are resolved against the shell's current directory.\n")
	b.WriteString("- Dangerous tools ask the user for confirmation themselves. Do not ask again in text.\n")
	b.WriteString("- When a tool returns output that starts with a header line such as \"")
	b.WriteString(strings.TrimSpace(tools.HeaderDirectoryListing))
	b.WriteString("\", include that output verbatim in your reply, header included.\n")
	b.WriteString("- If a tool fails, explain the failure briefly and suggest a next step.\n")
	b.WriteString("- Keep replies short. The reply may be read aloud by a screen reader.\n")
	if extra = strings.TrimSpace(extra); extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
	return b.String()
}

// LanguageNotice is the text that tells the model which language to reply in.
func LanguageNotice(code string) string {
	return fmt.Sprintf("[System: The user's display language is %q. Reply in that language from now on.]", code)
}

// LanguageTurns is the notice pair placed in the transcript at startup.
func LanguageTurns(code string) []session.Turn {
	return []session.Turn{
		session.TextTurn(session.RoleUser, LanguageNotice(code)),
		session.TextTurn(session.RoleModel, "Understood."),
	}
}

// SeedTranscript builds the transcript for a new process. A restored
// history is kept verbatim; the language notice is appended either way so
// the model sees the current display language.
func SeedTranscript(restored []session.Turn, displayLanguage string) *session.Transcript {
	t := session.NewTranscript(restored...)
	t.Append(LanguageTurns(displayLanguage)...)
	return t
}
