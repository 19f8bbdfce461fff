package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/imagekit-developer/imagekit-go"
	"github.com/imagekit-developer/imagekit-go/api/uploader"
)

type ImageKitConfig struct {
	PublicKey   string
	PrivateKey  string
	URLEndpoint string
}

// ImageKit - хранилище изображений поверх ImageKit SDK
type ImageKit struct {
	conf ImageKitConfig
	api  imageKitAPI
}

type imageKitFile struct {
	FileID   string
	URL      string
	FilePath string
}

// imageKitAPI - вызовы SDK, которыми пользуется хранилище
type imageKitAPI interface {
	upload(ctx context.Context, file string, param uploader.UploadParam) (imageKitFile, error)
	deleteFile(ctx context.Context, fileID string) error
}

type imageKitSDK struct {
	ik *imagekit.ImageKit
}

func (s imageKitSDK) upload(ctx context.Context, file string, param uploader.UploadParam) (imageKitFile, error) {
	resp, err := s.ik.Uploader.Upload(ctx, file, param)
	if err != nil {
		return imageKitFile{}, err
	}
	return imageKitFile{FileID: resp.Data.FileId, URL: resp.Data.Url, FilePath: resp.Data.FilePath}, nil
}

func (s imageKitSDK) deleteFile(ctx context.Context, fileID string) error {
	_, err := s.ik.Media.DeleteFile(ctx, fileID)
	return err
}

func NewImageKit(conf ImageKitConfig) (*ImageKit, error) {
	sdk := imagekit.NewFromParams(imagekit.NewParams{
		PrivateKey:  conf.PrivateKey,
		PublicKey:   conf.PublicKey,
		UrlEndpoint: conf.URLEndpoint,
	})
	return newImageKit(conf, imageKitSDK{ik: sdk})
}

func newImageKit(conf ImageKitConfig, api imageKitAPI) (*ImageKit, error) {
	if conf.PrivateKey == "" {
		return nil, fmt.Errorf("imagekit private key is empty")
	}
	return &ImageKit{conf: conf, api: api}, nil
}

// Upload загружает байты под заданным именем без суффикса уникальности
func (ik *ImageKit) Upload(ctx context.Context, data []byte, key, folder string) (*Object, error) {
	useUniqueFileName := false
	file, err := ik.api.upload(ctx, base64.StdEncoding.EncodeToString(data), uploader.UploadParam{
		FileName:          key,
		Folder:            folder,
		UseUniqueFileName: &useUniqueFileName,
	})
	if err != nil {
		return nil, fmt.Errorf("imagekit upload failed: %w", err)
	}

	url := file.URL
	if url == "" && file.FilePath != "" && ik.conf.URLEndpoint != "" {
		url = strings.TrimRight(ik.conf.URLEndpoint, "/") + "/" + strings.TrimLeft(file.FilePath, "/")
	}
	if url == "" {
		return nil, fmt.Errorf("imagekit upload returned no url")
	}

	return &Object{
		URL:    url,
		FileID: file.FileID,
		Key:    key,
		Folder: folder,
	}, nil
}

func (ik *ImageKit) Delete(ctx context.Context, obj Object) error {
	if obj.FileID == "" {
		return fmt.Errorf("imagekit delete: file id is empty")
	}
	if err := ik.api.deleteFile(ctx, obj.FileID); err != nil {
		return fmt.Errorf("imagekit delete failed: %w", err)
	}
	return nil
}
