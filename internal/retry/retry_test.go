package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_Success(t *testing.T) {
	calls := 0
	result := Do(context.Background(), DefaultConfig(), func() error {
		calls++
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1/1", result.Attempts, calls)
	}
}

func TestDo_RetryThenSuccess(t *testing.T) {
	config := Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Factor:       2.0,
	}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDo_MaxAttempts(t *testing.T) {
	config := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return errors.New("always fails")
	})

	if result.Err == nil {
		t.Error("expected error")
	}
	if result.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3/3", result.Attempts, calls)
	}
}

func TestDo_PermanentError(t *testing.T) {
	config := Config{MaxAttempts: 5, InitialDelay: time.Millisecond}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return Permanent(errors.New("invalid_auth"))
	})

	if result.Err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for a permanent error, got %d", calls)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	config := Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, config, func() error {
		return errors.New("retry")
	})

	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.Err)
	}
}

func TestDo_ZeroMaxAttempts(t *testing.T) {
	calls := 0
	result := Do(context.Background(), Config{}, func() error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1/1", calls, result.Attempts)
	}
}

func TestDo_HonorsRetryAfter(t *testing.T) {
	config := Config{
		MaxAttempts:  2,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
	}

	start := time.Now()
	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		if calls == 1 {
			return After(5*time.Millisecond, errors.New("ratelimited"))
		}
		return nil
	})

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("server delay was not used: waited %v", elapsed)
	}
}

func TestDo_RetryAfterIsCapped(t *testing.T) {
	config := Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}

	start := time.Now()
	calls := 0
	Do(context.Background(), config, func() error {
		calls++
		if calls == 1 {
			return After(time.Hour, errors.New("ratelimited"))
		}
		return nil
	})

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("MaxDelay did not cap the hint: waited %v", elapsed)
	}
}

func TestDoWithValue(t *testing.T) {
	config := Config{MaxAttempts: 3, InitialDelay: time.Millisecond}

	calls := 0
	value, result := DoWithValue(context.Background(), config, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("retry")
		}
		return "1712345678.000100", nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if value != "1712345678.000100" {
		t.Errorf("value = %q", value)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestPermanent(t *testing.T) {
	err := errors.New("original")
	perm := Permanent(err)

	if !IsPermanent(perm) {
		t.Error("should be permanent")
	}
	if !errors.Is(perm, err) {
		t.Error("should unwrap to original")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryAfterHint(t *testing.T) {
	base := errors.New("slow down")
	wrapped := After(2*time.Second, base)

	d, ok := RetryAfterHint(wrapped)
	if !ok || d != 2*time.Second {
		t.Errorf("hint = %v, %v", d, ok)
	}
	if !errors.Is(wrapped, base) {
		t.Error("should unwrap to original")
	}
	if _, ok := RetryAfterHint(base); ok {
		t.Error("plain error should carry no hint")
	}
	if After(time.Second, nil) != nil {
		t.Error("After(nil) should be nil")
	}
}

func TestLinearAndExponential(t *testing.T) {
	lin := Linear(5, 100*time.Millisecond)
	if lin.MaxAttempts != 5 || lin.Factor != 1.0 || lin.Jitter {
		t.Errorf("Linear = %+v", lin)
	}

	exp := Exponential(5, 100*time.Millisecond, 10*time.Second)
	if exp.Factor != 2.0 || !exp.Jitter || exp.MaxDelay != 10*time.Second {
		t.Errorf("Exponential = %+v", exp)
	}
}
