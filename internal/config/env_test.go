package config

import "testing"

func validEnv() *Env {
	return &Env{
		Port:          8000,
		Host:          "0.0.0.0",
		ClientHeader:  "X-Client-ID",
		LatencyWindow: 1000,
		DefaultTier:   "FREE",
		ClientTTL:     3600,
		UpstreamsFile: "upstreams.json",
		AppEnv:        "test",
		LogLevel:      "INFO",
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := validEnv().validate(); err != nil {
		t.Fatalf("expected valid env, got error: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Env)
	}{
		{"bad app env", func(e *Env) { e.AppEnv = "staging" }},
		{"bad log level", func(e *Env) { e.LogLevel = "TRACE" }},
		{"bad default tier", func(e *Env) { e.DefaultTier = "GOLD" }},
		{"port too low", func(e *Env) { e.Port = 0 }},
		{"port too high", func(e *Env) { e.Port = 70000 }},
		{"zero latency window", func(e *Env) { e.LatencyWindow = 0 }},
		{"negative client ttl", func(e *Env) { e.ClientTTL = -1 }},
		{"empty upstreams file", func(e *Env) { e.UpstreamsFile = "" }},
		{"cert without key", func(e *Env) { e.TLSCertFile = "cert.pem" }},
		{"key without cert", func(e *Env) { e.TLSKeyFile = "key.pem" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := validEnv()
			c.mutate(env)
			if err := env.validate(); err == nil {
				t.Fatalf("expected validation error for %s", c.name)
			}
		})
	}
}

func TestAddr_JoinsHostAndPort(t *testing.T) {
	env := &Env{Host: "127.0.0.1", Port: 9000}
	if got, want := env.Addr(), "127.0.0.1:9000"; got != want {
		t.Fatalf("Addr() = %q, want %q", got, want)
	}
}
