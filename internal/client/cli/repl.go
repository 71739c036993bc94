package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// repl is a simple read-eval-print loop. Command handlers report their own
// errors; the loop only routes input.
func (a *App) repl(ctx context.Context) {

	fmt.Println("vaultsync CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(a.prompt())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Println("Available commands: list, show, add, set, del, sync, pull, changepw, enable-2fa, logout, exit")
			} else {
				fmt.Println("Available commands: register, login, exit")
			}
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		case "register":
			if !a.isLoggedIn() {
				a.Register(ctx)
			}
		case "login":
			if !a.isLoggedIn() {
				a.Login(ctx)
			}
		default:
			if !a.isLoggedIn() {
				fmt.Println("not logged in, try 'login' or 'register'")
				continue
			}
			switch cmd {
			case "list":
				a.List(ctx)
			case "show":
				a.Show(ctx)
			case "add":
				a.Add(ctx)
			case "set":
				a.Set(ctx)
			case "del":
				a.Delete(ctx)
			case "sync":
				a.Sync(ctx)
			case "pull":
				a.Pull(ctx)
			case "changepw":
				a.ChangePassword(ctx)
			case "enable-2fa":
				a.EnableTwoFactor(ctx)
			case "logout":
				a.Logout(ctx)
			default:
				fmt.Println("Unknown command:", cmd)
			}
		}
	}
}

func (a *App) prompt() string {
	if a.isLoggedIn() {
		return fmt.Sprintf("vaultsync %s > ", a.session.Username)
	}
	return "vaultsync > "
}
