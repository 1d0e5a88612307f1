package main

import (
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"
)

var shellCommands = []prompt.Suggest{
	{Text: "projects", Description: "list projects"},
	{Text: "runs", Description: "runs <project>"},
	{Text: "show", Description: "show <project> <run> [metric ...]"},
	{Text: "summary", Description: "summary <project> <run>"},
	{Text: "agg", Description: "agg <project> <run> <metric>"},
	{Text: "status", Description: "status <project> <run>"},
	{Text: "help", Description: "list commands"},
	{Text: "exit", Description: "leave the shell"},
}

// runShell starts the interactive shell. Commands mirror the CLI
// subcommands; errors print and the shell keeps going.
func (a *app) runShell() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(shellExit); !ok {
				panic(r)
			}
		}
	}()
	fmt.Printf("runlog %s (data: %s)\n", Version, a.cfg.DataDir)
	fmt.Println("Type 'help' for commands, 'exit' to quit.")

	p := prompt.New(
		a.execute,
		a.complete,
		prompt.OptionTitle("runlog"),
		prompt.OptionPrefix("runlog> "),
		prompt.OptionPrefixTextColor(prompt.Cyan),
	)
	p.Run()
	return nil
}

func (a *app) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "exit", "quit":
		// go-prompt has no clean stop; matching its examples.
		fmt.Println("bye")
		panic(shellExit{})
	case "help":
		for _, c := range shellCommands {
			fmt.Printf("  %-10s %s\n", c.Text, c.Description)
		}
		return
	}

	if err := a.dispatch(fields[0], fields[1:]); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

// shellExit unwinds out of prompt.Run, which restores the terminal state in
// its own defers.
type shellExit struct{}

func (a *app) complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	fields := strings.Fields(text)

	// Completing the command word itself.
	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(text, " ")) {
		return prompt.FilterHasPrefix(shellCommands, d.GetWordBeforeCursor(), true)
	}

	argPos := len(fields) - 1
	if strings.HasSuffix(text, " ") {
		argPos++
	}

	switch fields[0] {
	case "runs", "show", "summary", "agg", "status":
		switch argPos {
		case 1:
			return prompt.FilterHasPrefix(a.projectSuggestions(), d.GetWordBeforeCursor(), true)
		case 2:
			if fields[0] != "runs" {
				return prompt.FilterHasPrefix(a.runSuggestions(fields[1]), d.GetWordBeforeCursor(), true)
			}
		}
	}
	return nil
}

func (a *app) projectSuggestions() []prompt.Suggest {
	projects, err := a.catalog.Projects()
	if err != nil {
		return nil
	}
	suggestions := make([]prompt.Suggest, 0, len(projects))
	for _, p := range projects {
		suggestions = append(suggestions, prompt.Suggest{Text: p})
	}
	return suggestions
}

func (a *app) runSuggestions(project string) []prompt.Suggest {
	runs, err := a.catalog.Runs(project)
	if err != nil {
		return nil
	}
	suggestions := make([]prompt.Suggest, 0, len(runs))
	for _, r := range runs {
		suggestions = append(suggestions, prompt.Suggest{
			Text:        r.Name,
			Description: r.Backend,
		})
	}
	return suggestions
}
