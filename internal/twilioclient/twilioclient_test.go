package twilioclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSendSMS(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), "AC1", "token", Options{BaseURL: srv.URL, FromNumber: "+15550001111"})
	sid, err := c.SendSMS(context.Background(), "+15552223333", "hello", "https://example.com/twilio/status")
	if err != nil {
		t.Fatalf("SendSMS() error = %v", err)
	}
	if sid != "SM123" {
		t.Fatalf("SendSMS() sid = %q, want SM123", sid)
	}
	if gotForm.Get("To") != "+15552223333" || gotForm.Get("From") != "+15550001111" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
	if gotForm.Get("StatusCallback") != "https://example.com/twilio/status" {
		t.Fatalf("StatusCallback = %q", gotForm.Get("StatusCallback"))
	}
}

func TestSendSMSMessagingServicePrecedence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("MessagingServiceSid") != "MG9" {
			t.Fatalf("MessagingServiceSid = %q", r.PostForm.Get("MessagingServiceSid"))
		}
		if r.PostForm.Get("From") != "" {
			t.Fatalf("From should be empty when messaging service is set")
		}
		_, _ = w.Write([]byte(`{"sid":"SM9"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), "AC1", "token", Options{BaseURL: srv.URL, FromNumber: "+15550001111", MessagingServiceSID: "MG9"})
	if _, err := c.SendSMS(context.Background(), "+15552223333", "hi", ""); err != nil {
		t.Fatalf("SendSMS() error = %v", err)
	}
}

func TestSendSMSErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The 'To' number is not valid","code":21211}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), "AC1", "token", Options{BaseURL: srv.URL, FromNumber: "+15550001111"})
	_, err := c.SendSMS(context.Background(), "bogus", "hi", "")
	if err == nil {
		t.Fatalf("SendSMS() expected error")
	}
}

func TestSendSMSRequiresSender(t *testing.T) {
	c := New(nil, "AC1", "token", Options{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.SendSMS(context.Background(), "+15552223333", "hi", ""); err == nil {
		t.Fatalf("SendSMS() expected error without from number")
	}
}

func TestParseStatusCallback(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM42")
	form.Set("MessageStatus", "delivered")
	got := ParseStatusCallback(form)
	if got.MessageSID != "SM42" || got.Status != "delivered" {
		t.Fatalf("ParseStatusCallback() = %+v", got)
	}
}
