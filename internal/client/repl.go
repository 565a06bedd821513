package client

import (
	"bufio"
	"context"
	"strings"
)

const helpText = `Available commands:
  login <email>          sign in with a password
  google <id_token>      sign in with a Google id_token
  whoami                 show the current session
  update key=value ...   change first, last or email
  open </path[?query]>   navigate to a page
  stay                   dismiss the inactivity warning
  logout                 sign out
  exit | quit            leave the program
`

// Run reads commands until EOF, quit, or ctx is done. Every line counts as
// user activity for the inactivity monitor.
func (a *App) Run(ctx context.Context, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		a.printf("gift %s> ", a.Location())
		if !scanner.Scan() {
			return
		}
		a.monitor.Touch()

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			a.printf(helpText)
		case "login":
			err = a.Login(ctx, firstArg(args))
		case "google":
			err = a.Google(ctx, firstArg(args))
		case "whoami":
			err = a.WhoAmI(ctx)
		case "update":
			err = a.Update(ctx, args)
		case "open":
			err = a.Open(ctx, firstArg(args))
		case "stay":
			err = a.StayLoggedIn()
		case "logout":
			err = a.Logout(ctx)
		case "exit", "quit":
			a.printf("Bye!\n")
			return
		default:
			a.printf("Unknown command: %s\n", cmd)
		}
		if err != nil {
			a.printf("error: %v\n", err)
		}
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
