package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:       "localhost:9000",
		AccessKey:      "a",
		SecretKey:      "b",
		Region:         "us-east-1",
		UseSSL:         false,
		BucketEvidence: "canary-evidence",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}
}

func TestConfigFromEnv_DisabledWhenNoEndpoint(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("Enabled()=true without CANARY_S3_ENDPOINT")
	}
}

func TestConfigFromEnv_EnabledRequiresCredentials(t *testing.T) {
	t.Setenv("CANARY_S3_ENDPOINT", "minio.internal:9000")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("ConfigFromEnv() expected error for missing credentials")
	}

	t.Setenv("CANARY_S3_ACCESS_KEY", "canary")
	t.Setenv("CANARY_S3_SECRET_KEY", "canaryminio")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if !cfg.Enabled() {
		t.Fatalf("Enabled()=false with endpoint set")
	}
	if cfg.BucketEvidence != "canary-evidence" {
		t.Fatalf("BucketEvidence=%q, want canary-evidence", cfg.BucketEvidence)
	}
}
