package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

const (
	reportPrefix     = "reports/"
	uploadURLExpiry  = 24 * time.Hour
	listingURLExpiry = time.Hour
	maxSlugLength    = 40
)

// Store keeps generated reports as JSON objects in a minio/S3 bucket and
// hands out presigned links so the API never proxies report bytes.
type Store struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

func New(ctx context.Context, endpoint, accessKey, secretKey, bucket, region string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	store := &Store{
		client: client,
		bucket: bucket,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := store.ensureBucket(ctx, region); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		// Another instance may have created it between the check and here.
		if exists, checkErr := s.client.BucketExists(ctx, s.bucket); checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) UploadReport(ctx context.Context, report *domain.Report) (*domain.StoredReport, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	key := buildReportKey(s.now(), report.UserID, report.InvestigatorQuery)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("put report object: %w", err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, uploadURLExpiry, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("presign report url: %w", err)
	}

	return &domain.StoredReport{
		Key:  key,
		URL:  presigned.String(),
		Size: int64(len(payload)),
	}, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.StoredReport, error) {
	if limit <= 0 {
		limit = 20
	}

	var objects []minio.ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    reportPrefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list report objects: %w", object.Err)
		}
		objects = append(objects, object)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	if len(objects) > limit {
		objects = objects[:limit]
	}

	out := make([]domain.StoredReport, 0, len(objects))
	for _, object := range objects {
		presigned, err := s.client.PresignedGetObject(ctx, s.bucket, object.Key, listingURLExpiry, url.Values{})
		if err != nil {
			return nil, fmt.Errorf("presign report url: %w", err)
		}
		out = append(out, domain.StoredReport{
			Key:          object.Key,
			URL:          presigned.String(),
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return out, nil
}

// buildReportKey yields time-partitioned keys so bucket listings stay usable:
// reports/2026/08/29/investigator_1756465200_stolen_funds_trace.json
func buildReportKey(now time.Time, userID, query string) string {
	owner := slugify(userID)
	if owner == "" {
		owner = "anonymous"
	}
	slug := slugify(query)
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s%s/%s_%d_%s.json",
		reportPrefix, now.Format("2006/01/02"), owner, now.Unix(), slug)
}

func slugify(raw string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
