package tinder

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/verify"
)

func (b *Bot) editProfile(ctx context.Context) error {
	if err := b.openProfile(ctx); err != nil {
		return err
	}
	if err := b.clickVisible(ctx, EditProfile); err != nil {
		return fmt.Errorf("edit profile: %w", err)
	}
	return verify.Sleep(ctx, b.settle)
}

func (b *Bot) saveProfile(ctx context.Context) error {
	if err := b.clickVisible(ctx, SaveProfile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return verify.Sleep(ctx, b.settle)
}

// SetBio replaces the profile bio.
func (b *Bot) SetBio(ctx context.Context, bio string) error {
	if err := b.editProfile(ctx); err != nil {
		return err
	}
	if err := b.fillVisible(ctx, BioTextarea, bio); err != nil {
		return fmt.Errorf("bio: %w", err)
	}
	if err := b.saveProfile(ctx); err != nil {
		return err
	}
	b.logger.Info("bio updated", zap.Bool("ok", true), zap.Int("length", len(bio)))
	return nil
}

// AddPhoto uploads the image at path as a new profile photo.
func (b *Bot) AddPhoto(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := b.editProfile(ctx); err != nil {
		return err
	}
	if err := b.clickVisible(ctx, AddMediaButton); err != nil {
		return fmt.Errorf("add media: %w", err)
	}
	if err := b.page.SetFiles(ctx, PhotoInput, []string{abs}); err != nil {
		return fmt.Errorf("photo input: %w", err)
	}
	if err := b.clickVisible(ctx, ChoosePhoto); err != nil {
		return fmt.Errorf("choose photo: %w", err)
	}
	if err := b.saveProfile(ctx); err != nil {
		return err
	}
	b.logger.Info("photo added", zap.Bool("ok", true), zap.String("path", abs))
	return nil
}
