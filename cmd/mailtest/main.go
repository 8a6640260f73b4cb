package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stepauth/stepauth/pkg/maildiag"
	"github.com/stepauth/stepauth/pkg/notification"
)

func main() {
	host := flag.String("host", "localhost", "SMTP server host")
	port := flag.Int("port", 25, "SMTP server port")
	username := flag.String("user", "", "SMTP username")
	password := flag.String("pass", "", "SMTP password")
	from := flag.String("from", "", "From email address")
	to := flag.String("to", "", "To email address")
	tls := flag.Bool("tls", false, "Require TLS")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall send timeout")
	flag.Parse()

	if *from == "" || *to == "" {
		fmt.Println("Error: from and to email addresses are required")
		os.Exit(1)
	}

	manager, err := notification.NewNotificationManager(
		notification.WithSMTP(notification.SMTPConfig{
			Host:     *host,
			Port:     *port,
			TLS:      *tls,
			Username: *username,
			Password: *password,
			From:     *from,
		}),
		notification.WithTestEmailTemplate(),
	)
	if err != nil {
		log.Fatalf("Failed to create notification manager: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	diag := maildiag.NewService(manager)
	if !diag.SendTestEmail(ctx, *to) {
		log.Fatal("Failed to send test email after all retry attempts")
	}

	fmt.Println("Email sent successfully!")
}
