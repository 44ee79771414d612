// Package gdrive provides a remote.ObjectStore backed by Google Drive.
//
// Object ids are Drive file ids and parent ids are Drive folder ids. Drive
// allows several files with the same name, so callers that need a single
// named object look it up with remote.FindByName before creating one.
//
//	srv, err := gdrive.New(ctx, option.WithCredentialsFile("service-account.json"))
package gdrive
