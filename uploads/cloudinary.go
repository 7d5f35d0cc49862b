package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStorage uploads documents to Cloudinary with an upload preset
type CloudinaryStorage struct {
	cld       *cloudinary.Cloudinary
	cloudName string
	preset    string
	apiSecret string
}

// DeliveryHost serves every Cloudinary asset
const DeliveryHost = "res.cloudinary.com"


// NewCloudinaryStorage builds a storage for the given cloud account
func NewCloudinaryStorage(cloudName, apiKey, apiSecret, preset string) (*CloudinaryStorage, error) {
	if cloudName == "" || preset == "" {
		return nil, errors.New("cloudinary cloud name and upload preset are required")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}
	return &CloudinaryStorage{cld: cld, cloudName: cloudName, preset: preset, apiSecret: apiSecret}, nil
}

// Upload sends one document as a multipart upload and returns its secure
// URL. A provider-side rejection surfaces the provider's message.
func (s *CloudinaryStorage) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	resp, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		UploadPreset: s.preset,
		ResourceType: "auto",
	})
	if err != nil {
		return "", err
	}
	if resp.Error.Message != "" {
		return "", errors.New(resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("no url returned for %s", name)
	}
	return resp.SecureURL, nil
}

// Signature is what a client needs to upload directly with the preset
type Signature struct {
	Timestamp    string `json:"timestamp"`
	Signature    string `json:"signature"`
	UploadPreset string `json:"uploadPreset"`
}

// Sign signs the upload preset at time now for a direct client upload
func (s *CloudinaryStorage) Sign(now time.Time) (Signature, error) {
	ts := strconv.FormatInt(now.Unix(), 10)
	sig, err := api.SignParameters(url.Values{
		"timestamp":     []string{ts},
		"upload_preset": []string{s.preset},
	}, s.apiSecret)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign upload: %w", err)
	}
	return Signature{Timestamp: ts, Signature: sig, UploadPreset: s.preset}, nil
}

// Owns reports whether rawURL is a secure delivery URL of this cloud
// account, as returned by Upload or by a signed direct upload
func (s *CloudinaryStorage) Owns(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host == DeliveryHost && u.User == nil &&
		strings.HasPrefix(u.Path, "/"+s.cloudName+"/")
}
