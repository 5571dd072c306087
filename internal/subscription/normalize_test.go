package subscription

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/state"
)

func snap(path, value string) model.Snapshot {
	return model.Snapshot{Path: path, Exists: true, Value: json.RawMessage(value)}
}

func TestNormalize_Feed(t *testing.T) {
	tests := []struct {
		name string
		snap model.Snapshot
		want []string
	}{
		{
			name: "キー順に取り出して新しい順に並べ替える",
			snap: snap("users/u1/feed", `{"-b":{"fid":"f2"},"-a":{"fid":"f1"},"-c":{"fid":"f3"}}`),
			want: []string{"f3", "f2", "f1"},
		},
		{
			name: "存在しない場合は空",
			snap: model.Snapshot{Path: "users/u1/feed"},
			want: []string{},
		},
		{
			name: "配列由来の数値キーは数値順",
			snap: snap("users/u1/feed", `{"0":{"fid":"a"},"1":{"fid":"b"},"10":{"fid":"k"},"2":{"fid":"c"}}`),
			want: []string{"k", "c", "b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Normalize(model.CollectionFeed, tt.snap)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if a.Type != state.UpdateFeeds {
				t.Fatalf("Type = %s", a.Type)
			}
			got := a.Payload.([]string)
			if got == nil {
				t.Fatal("payload must be non-nil")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("feeds = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize_Friends(t *testing.T) {
	s := snap("users/u1/following", `{"-b":{"uid":"u3","nickname":"carol"},"-a":"u2"}`)

	a, err := Normalize(model.CollectionFollowing, s)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if a.Type != state.UpdateFollowing {
		t.Fatalf("Type = %s", a.Type)
	}
	want := []model.FriendEntry{{UID: "u2"}, {UID: "u3", Nickname: "carol"}}
	if got := a.Payload.([]model.FriendEntry); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}

	f, err := Normalize(model.CollectionFollower, model.Snapshot{})
	if err != nil {
		t.Fatalf("Normalize follower: %v", err)
	}
	if f.Type != state.UpdateFollower || f.Payload.([]model.FriendEntry) == nil {
		t.Errorf("follower = %+v", f)
	}
}

func TestNormalize_LikeListAndNicknames(t *testing.T) {
	l, err := Normalize(model.CollectionLikeList, snap("users/u1/likelist", `{"-a":{"fid":"f1"}}`))
	if err != nil {
		t.Fatalf("Normalize likelist: %v", err)
	}
	if got := l.Payload.([]model.LikeEntry); len(got) != 1 || got[0].FID != "f1" {
		t.Errorf("likelist = %+v", got)
	}

	n, err := Normalize(model.CollectionNicknames, snap("statics/nicknames", `{"alice":{"nickname":"alice","uid":"u1"},"bob":"bob"}`))
	if err != nil {
		t.Fatalf("Normalize nicknames: %v", err)
	}
	want := []model.NicknameEntry{{Nickname: "alice", UID: "u1"}, {Nickname: "bob"}}
	if got := n.Payload.([]model.NicknameEntry); !reflect.DeepEqual(got, want) {
		t.Errorf("nicknames = %+v, want %+v", got, want)
	}
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		c    model.Collection
		snap model.Snapshot
	}{
		{"オブジェクトでない", model.CollectionFeed, snap("users/u1/feed", `"scalar"`)},
		{"エントリ不正", model.CollectionFollower, snap("users/u1/follower", `{"-a":123}`)},
		{"未知のコレクション", model.Collection("unknown"), snap("x", `{}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.c, tt.snap); err == nil {
				t.Error("expected error")
			}
		})
	}
}
