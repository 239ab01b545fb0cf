package flow

// builtinFlow is used when no flow file is configured.
const builtinFlow = `
start:
  message: Hi! I'm the chatflow demo bot. What would you like to do?
  options: [Chat, Tour, Quit]
  transitions:
    chat: chat
    tour: tour
    quit: end
  simulate: true
tour:
  message: Messages stream in one character at a time, toasts pop up and fade, and your history is saved between runs.
  toast: Press Ctrl+O to load earlier history
  auto: true
  next: start
chat:
  message: Ask me anything. Type "back" to return to the menu.
  chat: llm
  transitions:
    back: start
end:
  message: Thanks for stopping by. Press Ctrl+R to start over.
`

// Builtin returns the demo flow.
func Builtin() Flow {
	f, err := Parse([]byte(builtinFlow))
	if err != nil {
		panic("flow: invalid builtin flow: " + err.Error())
	}
	return f
}
