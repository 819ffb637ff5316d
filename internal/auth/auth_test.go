package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
)

// Cheap parameters keep the tests fast.
var testParams = &argon2id.Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestHashSecret(t *testing.T) {
	t.Run("unique hashes", func(t *testing.T) {
		hash, err := HashSecret("letmein", testParams)
		if err != nil {
			t.Fatalf("secret hash fail #1: %+v", err)
		}

		hash2, err := HashSecret("letmein", testParams)
		if err != nil {
			t.Fatalf("secret hash fail #2: %+v", err)
		}

		if hash == hash2 {
			t.Fatalf("hash and hash2 are the same hashes; should be different: %s, %s", hash, hash2)
		}
	})

	t.Run("corrupt hash", func(t *testing.T) {
		_, err := CheckSecretHash("letmein", "not-a-hash")
		if err == nil {
			t.Fatal("CheckSecretHash(): expected error but got none")
		}
	})
}

func TestAdminSecretCheck(t *testing.T) {
	secret, err := NewAdminSecret("S3cret", testParams)
	if err != nil {
		t.Fatalf("NewAdminSecret() error = %+v", err)
	}

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"exact_match", "S3cret", true},
		{"wrong_case", "s3cret", false},
		{"prefix", "S3c", false},
		{"trailing_space", "S3cret ", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := secret.Check(tt.candidate); got != tt.want {
				t.Errorf("Check(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestAdminSecretUnset(t *testing.T) {
	secret, err := NewAdminSecret("", testParams)
	if err != nil {
		t.Fatalf("NewAdminSecret() error = %+v", err)
	}

	if secret.Check("") || secret.Check("anything") {
		t.Error("unset secret must reject every candidate")
	}

	var nilSecret *AdminSecret
	if nilSecret.Check("anything") {
		t.Error("nil secret must reject every candidate")
	}
}

func TestAdminSecretBoundsConcurrentChecks(t *testing.T) {
	secret, err := NewAdminSecret("S3cret", testParams)
	if err != nil {
		t.Fatalf("NewAdminSecret() error = %+v", err)
	}

	// Hold every slot so the next check has to wait.
	if !secret.slots.TryAcquire(MaxConcurrentChecks) {
		t.Fatal("expected all check slots to be free")
	}

	result := make(chan bool, 1)
	go func() { result <- secret.Check("S3cret") }()

	select {
	case <-result:
		t.Fatal("Check() ran while every slot was taken")
	case <-time.After(50 * time.Millisecond):
	}

	secret.slots.Release(MaxConcurrentChecks)

	select {
	case ok := <-result:
		if !ok {
			t.Error("Check() = false after slot was released, want true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Check() did not finish after slot was released")
	}
}

func TestAdminSecretConcurrentChecks(t *testing.T) {
	secret, err := NewAdminSecret("S3cret", testParams)
	if err != nil {
		t.Fatalf("NewAdminSecret() error = %+v", err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidate, want := "S3cret", true
			if i%2 == 1 {
				candidate, want = "wrong", false
			}
			if got := secret.Check(candidate); got != want {
				t.Errorf("Check(%q) = %v, want %v", candidate, got, want)
			}
		}()
	}
	wg.Wait()
}
