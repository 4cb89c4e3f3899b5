// Package lens2 retrieves CESM2 Large Ensemble output from the NCAR open
// data bucket on S3. The bucket is public, so the client runs with anonymous
// credentials; subsetting happens locally after download.
package lens2

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/ports"
)

const (
	defaultBucket = "ncar-cesm2-lens"
	defaultRegion = "us-west-2"

	// ensembleSize is the number of LENS2 members published in the bucket.
	ensembleSize = 100
)

var climateVars = map[string]string{
	"temperature":   "TREFHT",
	"precipitation": "PRECT",
}

// s3API is the slice of the S3 client the store uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store implements ports.ClimateSource against the LENS2 bucket.
type Store struct {
	client s3API
	bucket string
	logger *internal.Logger
}

// Config holds explicit construction parameters, mostly for tests.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// New creates a LENS2 store with anonymous S3 access.
func New(ctx context.Context, cfg Config, logger *internal.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = defaultBucket
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// NewWithClient creates a store around an existing client, for tests.
func NewWithClient(client s3API, bucket string, logger *internal.Logger) *Store {
	return &Store{client: client, bucket: bucket, logger: logger}
}

// Name implements ports.ClimateSource.
func (s *Store) Name() string { return "lens2" }

// DefaultRequest returns the full published extent of the ensemble. LENS2
// follows a single forcing pathway, so there is one scenario and one model.
func (s *Store) DefaultRequest() ports.SubsetRequest {
	years := make([]int, 0, 101)
	for y := 2000; y <= 2100; y++ {
		years = append(years, y)
	}
	realizations := make([]int, ensembleSize)
	for i := range realizations {
		realizations[i] = i
	}
	return ports.SubsetRequest{
		Years:        years,
		Scenarios:    []string{"ssp370"},
		Models:       []string{"cesm2"},
		Realizations: realizations,
		Variables:    []string{"temperature", "precipitation"},
	}
}

// FetchSubset downloads the ensemble member files covering the request. The
// bucket holds whole-globe files per member and variable; years, locations
// and grid subsetting are applied after reading.
func (s *Store) FetchSubset(ctx context.Context, req ports.SubsetRequest, frequency string, dir string) ([]string, error) {
	if frequency != "daily" && frequency != "monthly" {
		return nil, errors.UnsupportedConfig("LENS2 provides daily and monthly data; got " + frequency)
	}
	variables := req.Variables
	if len(variables) == 0 {
		variables = s.DefaultRequest().Variables
	}
	wanted := map[int]bool{}
	for _, r := range req.Realizations {
		wanted[r] = true
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating download directory")
	}

	var files []string
	for _, variable := range variables {
		short, ok := climateVars[variable]
		if !ok {
			return nil, errors.UnsupportedConfig("unknown climate variable " + variable)
		}
		prefix := fmt.Sprintf("atm/%s/%s/", frequency, short)
		keys, err := s.listKeys(ctx, prefix)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, errors.NotFound("LENS2 objects under " + prefix)
		}
		// Member files sort by member id, so the list index is the
		// realization index.
		for i, key := range keys {
			if len(wanted) > 0 && !wanted[i] {
				continue
			}
			dest := filepath.Join(dir, filepath.Base(key))
			if err := s.download(ctx, key, dest); err != nil {
				return nil, err
			}
			files = append(files, dest)
		}
	}
	s.logger.Info("Downloaded %d LENS2 member files", len(files))
	return files, nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.ExternalServiceError("lens2", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".nc") {
				keys = append(keys, key)
			}
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	return keys, nil
}

func (s *Store) download(ctx context.Context, key, dest string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return errors.ExternalServiceError("lens2", err)
	}
	defer out.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "creating "+dest)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return errors.Wrap(err, "downloading "+key)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing "+dest)
	}
	s.logger.Debug("Downloaded s3://%s/%s", s.bucket, key)
	return nil
}
