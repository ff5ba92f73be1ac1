package sqlinline

const QEnsureStudioKV = `--sql 635671e5-09d7-4a2c-a001-d71921002aa0
create table if not exists studio_kv (
    key text primary key,
    value jsonb not null,
    updated_at timestamptz not null default now()
);
`

const QSelectStudioKV = `--sql 909f6e09-347e-4634-84f3-b59e3f2c4165
select value::text from studio_kv where key = $1::text;
`

const QUpsertStudioKV = `--sql 9fa1d2f2-fb74-4f49-aa3a-e46e33cb1d29
insert into studio_kv(key, value, updated_at)
values ($1::text, $2::jsonb, now())
on conflict (key) do update set value = excluded.value, updated_at = now();
`

const QDeleteStudioKV = `--sql 8cd3452e-cd91-4654-a3cd-a27f4883f9d3
delete from studio_kv where key = $1::text;
`
