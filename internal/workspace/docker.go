package workspace

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"github.com/agentforge/agentforge/internal/platform/logger"
)

// DockerSandbox enforces a project's sandbox policy by running the agent
// launch command inside a container bind-mounting the isolated workspace,
// instead of the local shell. This backs the "sandbox prefix" named in
// when Project.Sandbox == "docker".
type DockerSandbox struct {
	cli *client.Client
	image string
	logger *logger.Logger
}

// NewDockerSandbox creates a sandbox backed by the local Docker daemon.
func NewDockerSandbox(image string, log *logger.Logger) (*DockerSandbox, error) {
	cli, err:= client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation)
	if err != nil {
		return nil, fmt.Errorf("workspace: docker client: %w", err)
	}
	if image == "" {
		image = "agentforge/sandbox:latest"
	}
	return &DockerSandbox{cli: cli, image: image, logger: log}, nil
}

// Start launches a detached container whose sole job is to host the agent
// process; the PTY session still attaches via `docker exec`, so the
// multiplexer's contract (create/send/capture/kill) is unchanged by the
// sandbox choice.
func (s *DockerSandbox) Start(ctx context.Context, name, workspacePath string) (string, error) {
	resp, err:= s.cli.ContainerCreate(ctx, &container.Config{
			Image: s.image,
			Cmd: []string{"sleep", "infinity"},
			Tty: false,
			Labels: map[string]string{
				"agentforge.session": name,
			},
		}, &container.HostConfig{
			Mounts: []mount.Mount{{
					Type: mount.TypeBind,
					Source: workspacePath,
					Target: "/workspace",
			}},
		}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("workspace: create sandbox container: %w", err)
	}
	if err:= s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("workspace: start sandbox container: %w", err)
	}
	return resp.ID, nil
}

// Stop() removes the sandbox container, idempotently.
func (s *DockerSandbox) Stop(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	err:= s.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("workspace: remove sandbox container: %w", err)
	}
	return nil
}

// ExecPrefix returns the command prefix that routes a launch command
// through this container instead of the host shell.
func (s *DockerSandbox) ExecPrefix(containerID string) []string {
	return []string{"docker", "exec", "-i", "-w", "/workspace", containerID}
}
