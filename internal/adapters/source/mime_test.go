package source

import (
	"strings"
	"testing"
	"time"
)

const plainMessage = "From: Brand Promotions <promo@brand.example>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?Q?Win_a_bike_=F0=9F=9A=B2?=\r\n" +
	"Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n" +
	"Message-Id: <abc123@brand.example>\r\n" +
	"\r\n" +
	"Enter at https://brand.example/win before Friday.\r\n"

const multipartMessage = "From: promo@brand.example\r\n" +
	"Subject: Spring giveaway\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Enter at https://brand.example/spring =\r\n" +
	"today.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>ignored when plain exists</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=rules.pdf\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--outer--\r\n"

const htmlMessage = "From: promo@brand.example\r\n" +
	"Subject: Summer giveaway\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"PHA+V2luIGEgPGEgaHJlZj0iaHR0cHM6Ly9icmFuZC5leGFtcGxlL3N1bW1lciI+Y2Fu\r\n" +
	"b2U8L2E+PC9wPg==\r\n"

func TestParseMessage_Plain(t *testing.T) {
	c, err := parseMessage([]byte(plainMessage), "dir", "a.eml")
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if c.ID != "abc123@brand.example" {
		t.Errorf("ID = %q", c.ID)
	}
	if c.Subject != "Win a bike \U0001F6B2" {
		t.Errorf("Subject = %q", c.Subject)
	}
	if c.Sender != "Brand Promotions <promo@brand.example>" {
		t.Errorf("Sender = %q", c.Sender)
	}
	if !c.ReceivedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ReceivedAt = %v", c.ReceivedAt)
	}
	if c.Source != "dir" || c.RawRef != "a.eml" {
		t.Errorf("Source/RawRef = %q/%q", c.Source, c.RawRef)
	}
}

func TestParseMessage_NestedMultipart(t *testing.T) {
	c, err := parseMessage([]byte(multipartMessage), "smtp", "")
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if !strings.Contains(c.Body, "https://brand.example/spring today.") {
		t.Errorf("Body = %q", c.Body)
	}
	if strings.Contains(c.Body, "ignored") || strings.Contains(c.Body, "JVBER") {
		t.Errorf("Body kept html or attachment: %q", c.Body)
	}
	if c.ID == "" {
		t.Error("expected a digest id")
	}
}

func TestParseMessage_HTMLKeepsLinks(t *testing.T) {
	c, err := parseMessage([]byte(htmlMessage), "gmail", "m1")
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if !strings.Contains(c.Body, "https://brand.example/summer") || strings.Contains(c.Body, "<") {
		t.Errorf("Body = %q", c.Body)
	}
}

func TestParseMessage_DigestIsStable(t *testing.T) {
	a, _ := parseMessage([]byte(multipartMessage), "smtp", "")
	b, _ := parseMessage([]byte(multipartMessage), "smtp", "")
	if a.ID != b.ID {
		t.Errorf("ids differ: %q vs %q", a.ID, b.ID)
	}
}
