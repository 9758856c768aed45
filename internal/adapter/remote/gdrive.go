package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	appconfig "github.com/semmidev/arkiva/internal/config"
)

// GDriveTarget mirrors backup set directories into a Google Drive folder
// tree. Each remote prefix segment becomes a nested folder under the
// configured root folder.
type GDriveTarget struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(cfg *appconfig.GDriveConfig) (*GDriveTarget, error) {
	service, err := drive.NewService(context.Background(),
		option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveTarget{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *GDriveTarget) Name() string { return "gdrive" }

func (g *GDriveTarget) SyncSet(ctx context.Context, localDir string, remotePrefix string) error {
	parentID, err := g.ensureFolder(ctx, remotePrefix)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("failed to read set directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file, err := os.Open(filepath.Join(localDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", entry.Name(), err)
		}

		meta := &drive.File{
			Name:    entry.Name(),
			Parents: []string{parentID},
		}
		_, err = g.service.Files.Create(meta).Media(file).Context(ctx).Do()
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to upload %s to gdrive: %w", entry.Name(), err)
		}
	}
	return nil
}

func (g *GDriveTarget) DeletePrefix(ctx context.Context, remotePrefix string) error {
	folderID, err := g.findFolder(ctx, remotePrefix)
	if err != nil {
		return err
	}
	if folderID == "" {
		return nil
	}
	if err := g.service.Files.Delete(folderID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete gdrive folder: %w", err)
	}
	return nil
}

// ensureFolder walks the prefix segments, creating folders as needed, and
// returns the id of the deepest one.
func (g *GDriveTarget) ensureFolder(ctx context.Context, prefix string) (string, error) {
	parent := g.folderID
	for _, segment := range strings.Split(prefix, "/") {
		if segment == "" {
			continue
		}
		id, err := g.childFolder(ctx, parent, segment)
		if err != nil {
			return "", err
		}
		if id == "" {
			created, err := g.service.Files.Create(&drive.File{
				Name:     segment,
				MimeType: "application/vnd.google-apps.folder",
				Parents:  []string{parent},
			}).Context(ctx).Do()
			if err != nil {
				return "", fmt.Errorf("failed to create gdrive folder %s: %w", segment, err)
			}
			id = created.Id
		}
		parent = id
	}
	return parent, nil
}

func (g *GDriveTarget) findFolder(ctx context.Context, prefix string) (string, error) {
	parent := g.folderID
	for _, segment := range strings.Split(prefix, "/") {
		if segment == "" {
			continue
		}
		id, err := g.childFolder(ctx, parent, segment)
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", nil
		}
		parent = id
	}
	return parent, nil
}

func (g *GDriveTarget) childFolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf(
		"'%s' in parents and name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		parentID, name)

	list, err := g.service.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to query gdrive folder %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}
